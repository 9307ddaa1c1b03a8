package domain

import "encoding/json"

// Well-known mints.
const (
	WrappedSOLMint = "So11111111111111111111111111111111111111112"
	USDCMint       = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint       = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// QuoteRequest describes a swap quote to request from the aggregator.
type QuoteRequest struct {
	InputMint       string
	OutputMint      string
	AmountBaseUnits uint64
	SlippageBps     uint16
}

// Quote is an aggregator quote. Raw is passed back verbatim when
// requesting the swap transaction.
type Quote struct {
	Raw        json.RawMessage
	OutAmount  string
	RouteToken string
}

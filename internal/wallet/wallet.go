// Package wallet holds the process's signing key.
//
// The secret lives in one byte slice owned by the Wallet. It is never
// formatted, serialized or logged; Close zeroes it.
package wallet

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"

	"filippo.io/edwards25519"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"go.uber.org/zap/zapcore"
)

// Wallet errors
var (
	ErrInvalidKey           = errors.New("invalid private key")
	ErrMalformedTransaction = errors.New("malformed transaction")
	ErrNotSigner            = errors.New("wallet is not a required signer")
	ErrClosed               = errors.New("wallet closed")
)

const redacted = "[REDACTED]"

// secretKey is held behind a pointer so that even formatting a Wallet
// value with %v prints an address instead of key bytes.
type secretKey struct {
	b []byte // 64-byte ed25519 key: seed || public key
}

// Wallet is the sole owner of the signing key.
type Wallet struct {
	mu     sync.Mutex
	secret *secretKey
	public solana.PublicKey
	closed bool
}

// FromBase58 parses a base58 64-byte keypair, the format of SOLANA_PRIVATE_KEY.
func FromBase58(encoded string) (*Wallet, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: not base58", ErrInvalidKey)
	}
	w, err := New(raw)
	zero(raw)
	return w, err
}

// New builds a Wallet from a 64-byte keypair. The input is copied; the
// caller remains responsible for zeroing its own copy.
func New(keypair []byte) (*Wallet, error) {
	if len(keypair) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, ed25519.PrivateKeySize, len(keypair))
	}

	derived := ed25519.NewKeyFromSeed(keypair[:ed25519.SeedSize])
	defer zero(derived)
	if !bytes.Equal(derived[ed25519.SeedSize:], keypair[ed25519.SeedSize:]) {
		return nil, fmt.Errorf("%w: public half does not match seed", ErrInvalidKey)
	}
	if _, err := new(edwards25519.Point).SetBytes(keypair[ed25519.SeedSize:]); err != nil {
		return nil, fmt.Errorf("%w: public key is not a curve point", ErrInvalidKey)
	}

	secret := make([]byte, len(keypair))
	copy(secret, keypair)

	return &Wallet{
		secret: &secretKey{b: secret},
		public: solana.PublicKeyFromBytes(secret[ed25519.SeedSize:]),
	}, nil
}

// PublicKey returns the wallet's public identity.
func (w *Wallet) PublicKey() solana.PublicKey {
	return w.public
}

// Address returns the base58 public key.
func (w *Wallet) Address() string {
	return w.public.String()
}

// SignMessage signs msg with the held key.
func (w *Wallet) SignMessage(msg []byte) (solana.Signature, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return solana.Signature{}, ErrClosed
	}
	return solana.PrivateKey(w.secret.b).Sign(msg)
}

// SignTransaction decodes a serialized (legacy or versioned) transaction,
// signs its message and stores the signature at the wallet's signer index.
// It returns the re-serialized transaction and the new signature, which is
// also the transaction id.
func (w *Wallet) SignTransaction(raw []byte) ([]byte, solana.Signature, error) {
	if len(raw) == 0 {
		return nil, solana.Signature{}, fmt.Errorf("%w: empty", ErrMalformedTransaction)
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, solana.Signature{}, fmt.Errorf("%w: %w", ErrMalformedTransaction, err)
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, solana.Signature{}, fmt.Errorf("%w: encode message: %w", ErrMalformedTransaction, err)
	}

	required := int(tx.Message.Header.NumRequiredSignatures)
	if required > len(tx.Message.AccountKeys) {
		return nil, solana.Signature{}, fmt.Errorf("%w: %d signers but %d account keys", ErrMalformedTransaction, required, len(tx.Message.AccountKeys))
	}

	idx := -1
	for i := 0; i < required; i++ {
		if tx.Message.AccountKeys[i].Equals(w.public) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, solana.Signature{}, fmt.Errorf("%w: %s", ErrNotSigner, w.public)
	}

	sig, err := w.SignMessage(msg)
	if err != nil {
		return nil, solana.Signature{}, err
	}

	if len(tx.Signatures) < required {
		sigs := make([]solana.Signature, required)
		copy(sigs, tx.Signatures)
		tx.Signatures = sigs
	}
	tx.Signatures[idx] = sig

	signed, err := tx.MarshalBinary()
	if err != nil {
		return nil, solana.Signature{}, fmt.Errorf("%w: encode transaction: %w", ErrMalformedTransaction, err)
	}
	return signed, sig, nil
}

// Close zeroes the secret. The wallet cannot sign afterwards.
func (w *Wallet) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	zero(w.secret.b)
	w.closed = true
	return nil
}

// String never includes secret material.
func (w *Wallet) String() string {
	return fmt.Sprintf("Wallet(%s)", w.public)
}

// GoString never includes secret material.
func (w *Wallet) GoString() string {
	return w.String()
}

// MarshalJSON exposes only the public key.
func (w *Wallet) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"publicKey":%q,"secret":%q}`, w.public.String(), redacted)), nil
}

// MarshalText exposes only the public key.
func (w *Wallet) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (w *Wallet) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("public_key", w.public.String())
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

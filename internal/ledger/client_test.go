package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milamanifest69-lgtm/SolanaProject/internal/retry"
)

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

func rpcServer(t *testing.T, handle func(req rpcRequest) map[string]any) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := handle(req)
		resp["jsonrpc"] = "2.0"
		resp["id"] = req.ID
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestClient_Submit(t *testing.T) {
	want := solana.Signature{7, 7, 7}
	payload := []byte{1, 2, 3, 4}

	server, calls := rpcServer(t, func(req rpcRequest) map[string]any {
		assert.Equal(t, "sendTransaction", req.Method)
		require.Len(t, req.Params, 2)

		var encoded string
		require.NoError(t, json.Unmarshal(req.Params[0], &encoded))
		raw, err := base64.StdEncoding.DecodeString(encoded)
		require.NoError(t, err)
		assert.Equal(t, payload, raw)

		var opts map[string]any
		require.NoError(t, json.Unmarshal(req.Params[1], &opts))
		assert.Equal(t, "base64", opts["encoding"])

		return map[string]any{"result": want.String()}
	})

	c := NewClient(server.URL)
	defer c.Close()

	got, err := c.Submit(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, want.String(), got)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_SubmitSimulationFailureIsPermanent(t *testing.T) {
	server, _ := rpcServer(t, func(rpcRequest) map[string]any {
		return map[string]any{"error": map[string]any{
			"code":    -32002,
			"message": "Transaction simulation failed: Blockhash not found",
		}}
	})

	_, err := NewClient(server.URL).Submit(context.Background(), []byte{1})
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
}

func TestClient_SubmitNodeUnhealthyIsTransient(t *testing.T) {
	server, _ := rpcServer(t, func(rpcRequest) map[string]any {
		return map[string]any{"error": map[string]any{
			"code":    -32005,
			"message": "Node is unhealthy",
		}}
	})

	_, err := NewClient(server.URL).Submit(context.Background(), []byte{1})
	require.Error(t, err)
	assert.False(t, retry.IsPermanent(err))
}

func TestClient_SubmitTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(url).Submit(context.Background(), []byte{1})
	require.Error(t, err)
	assert.False(t, retry.IsPermanent(err))
}

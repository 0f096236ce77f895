package swap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testMintA = "So11111111111111111111111111111111111111112"
	testMintB = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	// A valid base58 signature (64 bytes).
	testSignature = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"
)

func TestQuoteParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, testMintA, r.URL.Query().Get("inputMint"))
		assert.Equal(t, "1000000", r.URL.Query().Get("amount"))
		assert.Equal(t, "100", r.URL.Query().Get("slippageBps"))
		w.Write([]byte(`{
			"inputMint": "` + testMintA + `",
			"outputMint": "` + testMintB + `",
			"inAmount": "1000000",
			"outAmount": "1500000",
			"otherAmountThreshold": "1485000",
			"priceImpactPct": "0.01",
			"slippageBps": 100
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, zap.NewNop())
	quote, err := client.Quote(context.Background(), testMintA, testMintB, "1000000", 100)

	require.NoError(t, err)
	assert.Equal(t, "1500000", quote.OutAmount)
	assert.Equal(t, "1485000", quote.OtherAmountThreshold)
	assert.InDelta(t, 0.01, quote.PriceImpactPct, 1e-9)
}

func TestQuoteNoRouteIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"no route found"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL, zap.NewNop())
	_, err := client.Quote(context.Background(), testMintA, testMintB, "1000000", 100)

	assert.ErrorIs(t, err, ErrNoRoute)
	assert.Equal(t, int32(1), calls.Load(), "4xx responses must not be retried")
}

func TestQuoteRejectsInvalidMint(t *testing.T) {
	client := NewClient("http://localhost:0", zap.NewNop())
	_, err := client.Quote(context.Background(), "not-a-mint", testMintB, "1", 100)
	assert.ErrorIs(t, err, ErrInvalidMint)
}

func TestExecuteReturnsSignature(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/swap", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{"signature": "` + testSignature + `"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, zap.NewNop())
	sig, err := client.Execute(context.Background(), &Quote{raw: []byte(`{}`)})

	require.NoError(t, err)
	assert.Equal(t, testSignature, sig)
}

func TestExecuteFailureWrapsExecutionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "simulation failed", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, zap.NewNop())
	_, err := client.Execute(context.Background(), &Quote{raw: []byte(`{}`)})

	assert.ErrorIs(t, err, ErrExecution)
}

func TestWalletValuations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/valuations", r.URL.Path)
		assert.Equal(t, testMintB, r.URL.Query().Get("base"))
		w.Write([]byte(`{"tokens": [
			{"mint": "` + testMintA + `", "symbol": "SOL", "rawAmount": "1000000000",
			 "uiAmount": 1.0, "decimals": 9, "valueInBase": 150.5, "priceInBase": 150.5}
		]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, zap.NewNop())
	tokens, err := client.WalletValuations(context.Background(), testMintB)

	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "SOL", tokens[0].Symbol)
	assert.InDelta(t, 150.5, tokens[0].ValueInBase, 1e-9)
	assert.Equal(t, uint8(9), tokens[0].Decimals)
}

// internal/swap/client.go
package swap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

const (
	defaultHTTPTimeout = 15 * time.Second
	maxRetryElapsed    = 10 * time.Second
)

// Client is the HTTP implementation of Provider against a Jupiter-style
// aggregator API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a swap client for the given API base URL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     logger.Named("swap"),
	}
}

// Quote requests a route for converting rawAmount of inputMint into
// outputMint. Transient transport failures are retried; a missing route
// or rejected request is permanent and surfaces as ErrNoRoute.
func (c *Client) Quote(ctx context.Context, inputMint, outputMint, rawAmount string, slippageBps int) (*Quote, error) {
	if err := validateMint(inputMint); err != nil {
		return nil, err
	}
	if err := validateMint(outputMint); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("inputMint", inputMint)
	query.Set("outputMint", outputMint)
	query.Set("amount", rawAmount)
	query.Set("slippageBps", strconv.Itoa(slippageBps))
	endpoint := c.baseURL + "/quote?" + query.Encode()

	op := func() (*Quote, error) {
		body, status, err := c.get(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		switch {
		case status == http.StatusOK:
			var quote Quote
			if err := json.Unmarshal(body, &quote); err != nil {
				return nil, backoff.Permanent(fmt.Errorf("decode quote response: %w", err))
			}
			quote.raw = body
			return &quote, nil
		case status >= 400 && status < 500:
			return nil, backoff.Permanent(fmt.Errorf("%w: status %d: %s", ErrNoRoute, status, truncate(body)))
		default:
			return nil, fmt.Errorf("quote request failed with status %d", status)
		}
	}

	quote, err := backoff.Retry(
		ctx,
		op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxRetryElapsed),
	)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Quote received",
		zap.String("input_mint", inputMint),
		zap.String("output_mint", outputMint),
		zap.String("in_amount", quote.InAmount),
		zap.String("out_amount", quote.OutAmount),
		zap.Float64("price_impact_pct", quote.PriceImpactPct))

	return quote, nil
}

// Execute submits the quoted swap. Submission is never retried here: a
// duplicate submission risks executing the swap twice.
func (c *Client) Execute(ctx context.Context, quote *Quote) (string, error) {
	payload, err := json.Marshal(map[string]json.RawMessage{
		"quoteResponse": quote.raw,
	})
	if err != nil {
		return "", fmt.Errorf("encode swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/swap", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build swap request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExecution, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrExecution, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrExecution, resp.StatusCode, truncate(body))
	}

	var result struct {
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrExecution, err)
	}
	if _, err := solana.SignatureFromBase58(result.Signature); err != nil {
		return "", fmt.Errorf("%w: malformed signature %q", ErrExecution, result.Signature)
	}

	c.logger.Info("✅ Swap executed", zap.String("signature", result.Signature))
	return result.Signature, nil
}

// WalletValuations returns all wallet holdings valued against baseMint.
func (c *Client) WalletValuations(ctx context.Context, baseMint string) ([]TokenValuation, error) {
	if err := validateMint(baseMint); err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/valuations?base=" + url.QueryEscape(baseMint)

	op := func() ([]TokenValuation, error) {
		body, status, err := c.get(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			if status >= 400 && status < 500 {
				return nil, backoff.Permanent(fmt.Errorf("valuations request rejected with status %d", status))
			}
			return nil, fmt.Errorf("valuations request failed with status %d", status)
		}
		var result struct {
			Tokens []TokenValuation `json:"tokens"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("decode valuations response: %w", err))
		}
		return result.Tokens, nil
	}

	return backoff.Retry(
		ctx,
		op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxRetryElapsed),
	)
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, backoff.Permanent(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func validateMint(mint string) error {
	if _, err := solana.PublicKeyFromBase58(mint); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidMint, mint)
	}
	return nil
}

func truncate(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

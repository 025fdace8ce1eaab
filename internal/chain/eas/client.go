package eas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/chain"
)

// GraphQLClient is the subset of the indexer API the adapter consumes.
type GraphQLClient interface {
	QueryAttestations(ctx context.Context, where map[string]any, take int, orderBy []map[string]string) ([]Attestation, error)
}

// Client posts GraphQL queries to one chain's attestation indexer.
type Client struct {
	httpClient *http.Client
	endpoint   string
	chain      string
	logger     *slog.Logger
}

func NewClient(endpoint, chainName string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		chain:      chainName,
		logger:     logger,
	}
}

func (c *Client) call(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(Request{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &chain.StatusError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 256)}
	}

	var gqlResp Response
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		return nil, &chain.DecodeError{Chain: c.chain, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	if len(gqlResp.Errors) > 0 {
		return nil, &QueryError{Errors: gqlResp.Errors}
	}
	if len(gqlResp.Data) == 0 || string(gqlResp.Data) == "null" {
		return nil, &chain.DecodeError{Chain: c.chain, Err: fmt.Errorf("response has no data")}
	}
	return gqlResp.Data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

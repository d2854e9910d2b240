package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.jup.ag/swap/v1"
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  strings.TrimSpace(apiKey),
		HTTP: &http.Client{
			Timeout: 12 * time.Second,
		},
	}
}

type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	b := strings.TrimSpace(string(e.Body))
	if b == "" {
		return fmt.Sprintf("jupiter http %d", e.StatusCode)
	}
	return fmt.Sprintf("jupiter http %d: %s", e.StatusCode, b)
}

func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*QuoteResponse, error) {
	if strings.TrimSpace(req.InputMint) == "" {
		return nil, fmt.Errorf("inputMint is required")
	}
	if strings.TrimSpace(req.OutputMint) == "" {
		return nil, fmt.Errorf("outputMint is required")
	}
	if strings.TrimSpace(req.Amount) == "" {
		return nil, fmt.Errorf("amount is required")
	}

	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", req.Amount)

	if req.SlippageBps != nil {
		q.Set("slippageBps", fmt.Sprintf("%d", *req.SlippageBps))
	}
	if req.SwapMode != "" {
		q.Set("swapMode", req.SwapMode)
	}
	if len(req.Dexes) > 0 {
		q.Set("dexes", strings.Join(req.Dexes, ","))
	}
	if len(req.ExcludeDexes) > 0 {
		q.Set("excludeDexes", strings.Join(req.ExcludeDexes, ","))
	}
	if req.RestrictIntermediateTokens != nil {
		q.Set("restrictIntermediateTokens", fmt.Sprintf("%t", *req.RestrictIntermediateTokens))
	}
	if req.OnlyDirectRoutes != nil {
		q.Set("onlyDirectRoutes", fmt.Sprintf("%t", *req.OnlyDirectRoutes))
	}
	if req.AsLegacyTransaction != nil {
		q.Set("asLegacyTransaction", fmt.Sprintf("%t", *req.AsLegacyTransaction))
	}
	if req.PlatformFeeBps != nil {
		q.Set("platformFeeBps", fmt.Sprintf("%d", *req.PlatformFeeBps))
	}
	if req.MaxAccounts != nil {
		q.Set("maxAccounts", fmt.Sprintf("%d", *req.MaxAccounts))
	}
	if req.InstructionVersion != "" {
		q.Set("instructionVersion", req.InstructionVersion)
	}
	if req.DynamicSlippage != nil {
		q.Set("dynamicSlippage", fmt.Sprintf("%t", *req.DynamicSlippage))
	}

	var out QuoteResponse
	if err := c.do(ctx, http.MethodGet, "/quote?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("jupiter quote: %w", err)
	}
	return &out, nil
}

// SwapInstructions asks Jupiter for the individual instructions of a quoted
// route, so the caller can assemble and sign the transaction itself.
func (c *Client) SwapInstructions(ctx context.Context, req SwapInstructionsRequest) (*SwapInstructionsResponse, error) {
	if strings.TrimSpace(req.UserPublicKey) == "" {
		return nil, fmt.Errorf("userPublicKey is required")
	}
	if req.QuoteResponse == nil {
		return nil, fmt.Errorf("quoteResponse is required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var out SwapInstructionsResponse
	if err := c.do(ctx, http.MethodPost, "/swap-instructions", body, &out); err != nil {
		return nil, fmt.Errorf("jupiter swap-instructions: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("jupiter swap-instructions: %s", out.Error)
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	httpReq.Header.Set("accept", "application/json")
	if body != nil {
		httpReq.Header.Set("content-type", "application/json")
	}
	if c.APIKey != "" {
		httpReq.Header.Set("x-api-key", c.APIKey)
	}

	res, err := c.HTTP.Do(httpReq)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &HTTPError{StatusCode: res.StatusCode, Body: raw}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

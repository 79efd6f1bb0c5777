package goldapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/bytedance/sonic"

	"metalsync/internal/provider"
)

// ErrMissingCredential is returned when neither the call nor the client
// carries an access token.
var ErrMissingCredential = errors.New("goldapi: missing access token")

// MaxResponseBytes caps how much of a response body is read.
const MaxResponseBytes = 1 << 20

// UpstreamError is a non-2xx reply or an unusable body.
type UpstreamError struct {
	Symbol     provider.Symbol
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string { return e.Message }

// FetchQuote performs GET {base}/{symbol}/{currency}. A non-empty credential
// overrides the client's API key.
func (c *Client) FetchQuote(ctx context.Context, symbol provider.Symbol, credential string) (provider.Quote, error) {
	token := credential
	if token == "" {
		token = c.apiKey
	}
	if token == "" {
		return provider.Quote{}, ErrMissingCredential
	}

	url := fmt.Sprintf("%s/%s/%s", c.baseURL, symbol, c.currency)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return provider.Quote{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()
	req.Header.Set("x-access-token", token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return provider.Quote{}, fmt.Errorf("performing request for %s: %w", symbol, err)
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, MaxResponseBytes+1))
	if err != nil {
		return provider.Quote{}, fmt.Errorf("reading %s response: %w", symbol, err)
	}
	if len(b) > MaxResponseBytes {
		return provider.Quote{}, &UpstreamError{Symbol: symbol, StatusCode: res.StatusCode, Message: fmt.Sprintf("%s response exceeds %d bytes", symbol, MaxResponseBytes)}
	}

	var body Response
	decodeErr := sonic.Unmarshal(b, &body)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg := body.Message
		if msg == "" {
			msg = body.Error
		}
		if decodeErr != nil || msg == "" {
			msg = fmt.Sprintf("failed %s", symbol)
		}
		return provider.Quote{}, &UpstreamError{Symbol: symbol, StatusCode: res.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return provider.Quote{}, &UpstreamError{Symbol: symbol, StatusCode: res.StatusCode, Message: fmt.Sprintf("decoding %s response: %v", symbol, decodeErr)}
	}
	if body.Price == nil || math.IsNaN(*body.Price) || math.IsInf(*body.Price, 0) {
		return provider.Quote{}, &UpstreamError{Symbol: symbol, StatusCode: res.StatusCode, Message: fmt.Sprintf("%s response has no price", symbol)}
	}

	return body.ToQuote(symbol, c.clock.Now(), c.loc), nil
}

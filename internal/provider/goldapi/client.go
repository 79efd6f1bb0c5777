package goldapi

import (
	"net/http"
	"time"

	"metalsync/internal/clock"
)

const (
	DefaultBaseURL  = "https://www.goldapi.io/api"
	DefaultCurrency = "USD"
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=goldapi_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches spot quotes from goldapi.io, one symbol per request.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// currency is the quote currency appended to every path.
	currency string
	// apiKey is used when a call does not carry its own credential.
	apiKey string
	// httpClient is the HTTP client.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	clock  clock.Clock
	loc    *time.Location
}

// Option is a configuration option for the goldapi client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithCurrency sets the quote currency.
func WithCurrency(currency string) Option {
	return func(c *Client) {
		if currency != "" {
			c.currency = currency
		}
	}
}

// WithAPIKey sets the fallback access token.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithClock sets the clock used to stamp quotes that arrive without a timestamp.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithLocation sets the zone used for the display time.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// New creates a goldapi client.
func New(options ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		currency:   DefaultCurrency,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		clock:      clock.Real{},
		loc:        time.Local,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Client) Name() string { return "goldapi" }

// Package scryfall is a small client for the Scryfall card API, used to
// fill in display metadata for collection cards.
package scryfall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ramonehamilton/cardvault/internal/inventory"
)

const (
	DefaultBaseURL = "https://api.scryfall.com"

	defaultRateLimit = 10 // requests per second
	defaultTimeout   = 30 * time.Second
	maxRetries       = 3
	initialBackoff   = 1 * time.Second
	maxBackoff       = 16 * time.Second
)

// Options configures a Client. Zero values select defaults.
type Options struct {
	BaseURL    string
	RateLimit  float64
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client represents a Scryfall API client with rate limiting.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	userAgent   string
	logger      *slog.Logger
	backoff     time.Duration
}

// NewClient creates a new Scryfall API client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRateLimit
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "cardvault/1.0"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		httpClient:  opts.HTTPClient,
		rateLimiter: rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
		userAgent:   opts.UserAgent,
		logger:      opts.Logger,
		backoff:     initialBackoff,
	}
}

// GetCard retrieves a card by its Scryfall ID.
func (c *Client) GetCard(ctx context.Context, id string) (*Card, error) {
	u := fmt.Sprintf("%s/cards/%s", c.baseURL, url.PathEscape(id))

	var card Card
	if err := c.doRequest(ctx, u, &card); err != nil {
		return nil, fmt.Errorf("failed to get card %s: %w", id, err)
	}

	return &card, nil
}

// LookupCard implements inventory.MetadataLookup. Multi-faced cards report
// the front face's type line and the union of the faces' colors.
func (c *Client) LookupCard(ctx context.Context, scryfallID string) (*inventory.CardMetadata, error) {
	card, err := c.GetCard(ctx, scryfallID)
	if err != nil {
		return nil, err
	}
	return card.Metadata(), nil
}

// Metadata extracts the display metadata the collection stores.
func (card *Card) Metadata() *inventory.CardMetadata {
	md := &inventory.CardMetadata{
		TypeLine:  card.TypeLine,
		Colors:    card.Colors,
		ManaValue: card.CMC,
	}

	if len(card.CardFaces) > 0 {
		if md.TypeLine == "" {
			md.TypeLine = card.CardFaces[0].TypeLine
		}
		if md.Colors == nil {
			seen := make(map[string]bool)
			for _, face := range card.CardFaces {
				for _, color := range face.Colors {
					if !seen[color] {
						seen[color] = true
						md.Colors = append(md.Colors, color)
					}
				}
			}
		}
	}
	if md.Colors == nil {
		// Colorless.
		md.Colors = []string{}
	}

	return md
}

// doRequest performs a GET with rate limiting, retrying network errors and
// HTTP 429 with exponential backoff.
func (c *Client) doRequest(ctx context.Context, u string, result any) error {
	var lastErr error
	backoff := c.backoff

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter error: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			if attempt < maxRetries {
				c.logger.Debug("Scryfall request failed, retrying", "url", u, "attempt", attempt+1, "error", err)
				if err := sleep(ctx, backoff); err != nil {
					return err
				}
				backoff = min(backoff*2, maxBackoff)
				continue
			}
			return lastErr
		}

		retry, wait, err := c.handleResponse(resp, u, result)
		if !retry {
			return err
		}

		lastErr = err
		if attempt < maxRetries {
			if wait == 0 {
				wait = backoff
			}
			c.logger.Debug("Scryfall rate limited, backing off", "url", u, "wait", wait)
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			backoff = min(backoff*2, maxBackoff)
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// handleResponse decodes resp into result. It reports whether the request
// should be retried and how long the server asked the client to wait.
func (c *Client) handleResponse(resp *http.Response, u string, result any) (bool, time.Duration, error) {
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return false, 0, fmt.Errorf("failed to parse JSON response: %w", err)
		}
		return false, 0, nil

	case http.StatusTooManyRequests:
		var wait time.Duration
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
		return true, wait, fmt.Errorf("rate limited (HTTP 429)")

	case http.StatusNotFound:
		return false, 0, &NotFoundError{URL: u}

	default:
		body, _ := io.ReadAll(resp.Body)

		var apiErr APIError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Details != "" {
			return false, 0, &apiErr
		}
		return false, 0, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

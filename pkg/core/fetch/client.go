// Package fetch is the shared HTTP layer: one client with a unified
// retry/backoff policy consumed by the release-asset store and the registry
// API client, plus the Companies House bulk download URL scheme.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound marks a 404 from a remote source. Not-yet-published archives
// and unknown company numbers are normal outcomes; callers skip them.
var ErrNotFound = errors.New("fetch: not found")

const defaultUserAgent = "CompaniesHouseFinder/1.0"

// Client wraps http.Client with the retry policy shared by every remote call:
// bounded attempts, Retry-After honored on 429, exponential backoff capped at
// a minute for transient failures.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string

	// BasicAuthUser is sent as the username with an empty password when set;
	// the registry API authenticates with the API key as username.
	BasicAuthUser string

	// MaxAttempts bounds retries per call; zero means the default of 8.
	MaxAttempts int
}

// NewClient returns a client with the default timeout.
func NewClient() *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		UserAgent:  defaultUserAgent,
	}
}

// NewDownloadClient returns a client sized for multi-hundred-megabyte bulk
// archive downloads.
func NewDownloadClient() *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 10 * time.Minute},
		UserAgent:  defaultUserAgent,
	}
}

func (c *Client) attempts() int {
	if c.MaxAttempts > 0 {
		return c.MaxAttempts
	}
	return 8
}

// Do performs req with retries. 404 yields ErrNotFound. 429 sleeps for the
// server-specified Retry-After when present, else backs off exponentially.
// Every retry, rate-limited or not, counts against MaxAttempts, so a persistent
// 429 cannot loop forever. 5xx and transport errors retry with backoff until
// attempts are exhausted, then surface the last failure.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if c.BasicAuthUser != "" && req.Header.Get("Authorization") == "" {
		req.SetBasicAuth(c.BasicAuthUser, "")
	}

	backoff := 2 * time.Second
	var lastErr error
	for attempt := 0; attempt < c.attempts(); attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("fetch: rewind request body: %w", err)
			}
			req.Body = body
		}
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, req.Context().Err()
			}
			if !Sleep(req.Context(), backoff) {
				return nil, req.Context().Err()
			}
			backoff = nextBackoff(backoff)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			drain(resp)
			return nil, fmt.Errorf("%w: %s", ErrNotFound, req.URL)
		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp, backoff)
			drain(resp)
			log.Printf("[rate] 429 %s — sleeping %.1fs", req.URL, wait.Seconds())
			if !Sleep(req.Context(), wait) {
				return nil, req.Context().Err()
			}
			backoff = nextBackoff(backoff)
			continue
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("fetch: %s returned %d", req.URL, resp.StatusCode)
			drain(resp)
			if !Sleep(req.Context(), backoff) {
				return nil, req.Context().Err()
			}
			backoff = nextBackoff(backoff)
			continue
		}
		return resp, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("fetch: %s: attempts exhausted", req.URL)
	}
	return nil, lastErr
}

// GetBytes fetches url fully into memory. Non-2xx statuses (other than the
// retried/404 cases handled by Do) become errors.
func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch: %s returned %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func retryAfter(resp *http.Response, fallback time.Duration) time.Duration {
	ra := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if ra == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > time.Minute {
		next = time.Minute
	}
	return next
}

// Sleep waits for d unless ctx is done first; it reports whether the full
// wait elapsed. Inter-attempt pauses elsewhere use it so that cancellation
// interrupts a backoff instead of blocking on a bare time.Sleep.
func Sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}

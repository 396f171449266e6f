// Package source fetches the exam calendar page and extracts raw
// availability rows for normalization.
package source

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/user/centsalert/internal/availability"
	"github.com/user/centsalert/pkg/logger"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Client fetches availability rows from the calendar page.
type Client struct {
	url    string
	client *http.Client
}

// NewClient creates a calendar source client. timeout bounds each
// fetch; a slow or unreachable source fails the cycle instead of
// hanging it.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves the calendar page and returns its raw rows. Any
// failure here is a fetch failure for the whole cycle; the caller keeps
// the previous snapshot and retries on the next tick.
func (c *Client) Fetch(ctx context.Context) ([]availability.RawRow, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch calendar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar returned status %d", resp.StatusCode)
	}

	rows, err := ParseCalendar(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar: %w", err)
	}

	logger.Debug().Int("rows", len(rows)).Msg("Fetched calendar rows")
	return rows, nil
}

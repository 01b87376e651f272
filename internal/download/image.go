package download

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hazyhaar/vhist/guard"
)

// ImageClient fetches CAPTCHA images. They are public, so no session
// cookies are sent.
type ImageClient struct {
	Client *http.Client
}

// NewImageClient returns an ImageClient with a short timeout.
func NewImageClient() *ImageClient {
	return &ImageClient{Client: &http.Client{Timeout: 30 * time.Second}}
}

// FetchImage GETs url with the browser's user agent.
func (c *ImageClient) FetchImage(ctx context.Context, url, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("download: captcha request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: captcha: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: captcha: http %d", resp.StatusCode)
	}
	return guard.LimitedReadAll(resp.Body, guard.MaxImageBytes)
}

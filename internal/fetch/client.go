// internal/fetch/client.go
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	overlayElementID = "board-overlay"
	maxBodyBytes     = 32 << 20
)

// ErrNoOverlay means the server has no overlay for the requested state.
// Terminal positions are the usual reason.
var ErrNoOverlay = errors.New("no overlay for state")

// Error describes a failed overlay fetch.
type Error struct {
	Key    string
	Status int // HTTP status, zero if no response was received
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetching overlay %q: status %d: %v", e.Key, e.Status, e.Err)
	}
	return fmt.Sprintf("fetching overlay %q: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Client retrieves board overlays from the games server.
type Client struct {
	baseURL    string
	game       string
	variant    string
	httpClient *http.Client
}

// New creates a client for one game variant.
func New(baseURL, game, variant string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		game:       game,
		variant:    variant,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// URL returns the overlay page for a board state.
func (c *Client) URL(state string) string {
	return fmt.Sprintf("%s/games/%s/variants/%s/%s/board-overlay",
		c.baseURL, url.PathEscape(c.game), url.PathEscape(c.variant), url.PathEscape(state))
}

// Healthcheck checks that the games server is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// Fetch returns the raw image bytes of the overlay for state.
//
// The server may answer with the image itself or with an HTML page holding
// an <img id="board-overlay"> whose src is a data URL or a link.
func (c *Client) Fetch(ctx context.Context, state string) ([]byte, error) {
	target := c.URL(state)
	body, contentType, err := c.get(ctx, state, target)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(contentType, "image/") {
		return body, nil
	}

	src, err := findOverlaySource(body)
	if err != nil {
		return nil, &Error{Key: state, Err: err}
	}

	if strings.HasPrefix(src, "data:") {
		data, err := decodeDataURL(src)
		if err != nil {
			return nil, &Error{Key: state, Err: err}
		}
		return data, nil
	}

	base, err := url.Parse(target)
	if err != nil {
		return nil, &Error{Key: state, Err: err}
	}
	ref, err := base.Parse(src)
	if err != nil {
		return nil, &Error{Key: state, Err: fmt.Errorf("bad overlay src: %w", err)}
	}
	img, _, err := c.get(ctx, state, ref.String())
	return img, err
}

func (c *Client) get(ctx context.Context, state, target string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", &Error{Key: state, Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", &Error{Key: state, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, "", &Error{Key: state, Status: resp.StatusCode, Err: ErrNoOverlay}
	case resp.StatusCode != http.StatusOK:
		return nil, "", &Error{Key: state, Status: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "", &Error{Key: state, Status: resp.StatusCode, Err: fmt.Errorf("reading body: %w", err)}
	}
	return body, resp.Header.Get("Content-Type"), nil
}

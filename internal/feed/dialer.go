package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/fasthttp/websocket"
)

// WebSocketDialer opens push connections with the fasthttp websocket client.
type WebSocketDialer struct {
	dialer *websocket.Dialer
	header http.Header
}

func NewWebSocketDialer(header http.Header) *WebSocketDialer {
	d := *websocket.DefaultDialer
	return &WebSocketDialer{dialer: &d, header: header}
}

func (d *WebSocketDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, rawURL, d.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// URLFromOrigin derives the push endpoint from the page origin: a secure
// origin negotiates wss, an insecure one ws.
func URLFromOrigin(origin, path string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("invalid origin: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported origin scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("origin %q has no host", origin)
	}

	if path == "" {
		path = "/ws"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = path
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

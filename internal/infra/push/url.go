package push

import (
	"fmt"
	"net/url"
	"strings"
)

// endpointURL rewrites the REST base URL to the matching websocket
// origin, appends the channel path and attaches the session credential
// as a query parameter.
func endpointURL(apiBase, path, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(apiBase, "/"))
	if err != nil {
		return "", fmt.Errorf("push: invalid API base %q: %w", apiBase, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("push: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Package auth talks to the external token issuer that mints game-server
// credentials. Called at session start and on every renewal.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var ErrAuthenticate = errors.New("authenticate_failed")

// Credentials is one issued credential set. Tokens expire server-side
// after roughly twenty minutes; the renewal scheduler replaces the whole
// set before that.
type Credentials struct {
	PPToken         string `json:"ppToken"`
	JSessionID      string `json:"jsessionId"`
	PragmaticUserID string `json:"pragmaticUserId"`
	Timestamp       int64  `json:"timestamp"`

	IssuedAt time.Time `json:"-"`
}

type Client struct {
	baseURL string
	httpc   *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
	}
}

// Authenticate requests a fresh credential set for the given subject.
func (c *Client) Authenticate(ctx context.Context, subject string) (Credentials, error) {
	body, err := json.Marshal(map[string]string{
		"action":  "authenticate",
		"subject": subject,
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrAuthenticate, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrAuthenticate, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrAuthenticate, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Credentials{}, fmt.Errorf("%w: status %d", ErrAuthenticate, resp.StatusCode)
	}

	var creds Credentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrAuthenticate, err)
	}
	if creds.PPToken == "" || creds.JSessionID == "" || creds.PragmaticUserID == "" {
		return Credentials{}, fmt.Errorf("%w: incomplete credential set", ErrAuthenticate)
	}
	creds.IssuedAt = time.Now()
	return creds, nil
}

package share

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// signature is the hex HMAC-SHA256 of message under key.
func signature(key string, message string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// staticKeyHeaders signs the current unix timestamp with a secret that
// rotates every hour.
func staticKeyHeaders(seed string, apiKey string, now time.Time) http.Header {
	ts := strconv.FormatInt(now.Unix(), 10)
	hour := now.Unix() / 3600

	headers := http.Header{}
	headers.Set("X-Timestamp", ts)
	headers.Set("X-Signature", signature(fmt.Sprintf("%s:%d", seed, hour), ts))
	if apiKey != "" {
		headers.Set("X-API-Key", apiKey)
	}
	return headers
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Token exchanges the static API credentials for a bearer token.
func (c *Client) Token(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/token", nil)
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrAuthFailure, err)
	}
	for key, values := range staticKeyHeaders(c.creds.Seed, c.creds.Key, c.now()) {
		req.Header[key] = values
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %w", ErrAuthFailure, statusError("auth token", resp))
	}

	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: decode token response: %v", ErrAuthFailure, err)
	}
	if strings.TrimSpace(payload.Token) == "" {
		return "", fmt.Errorf("%w: empty token", ErrAuthFailure)
	}
	return payload.Token, nil
}

func statusError(op string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

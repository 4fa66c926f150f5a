package authclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type tokenResponse struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	Token            string `json:"token"`
	RefreshCycles    int    `json:"refreshCycles"`
	ExpiresInMinutes int    `json:"expiresInMinutes"`
}

// HTTPRenewer posts to the renewal endpoint with the current token.
type HTTPRenewer struct {
	Client   *http.Client
	Endpoint string
}

// Renew implements Renewer.
func (r *HTTPRenewer) Renew(ctx context.Context, current string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, strings.NewReader("{}"))
	if err != nil {
		return "", fmt.Errorf("build renewal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+current)

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("renewal request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxFailureBody))
	if err != nil {
		return "", fmt.Errorf("read renewal response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var reason failure
		_ = json.Unmarshal(raw, &reason)
		return "", fmt.Errorf("renewal rejected with %d: %s", resp.StatusCode, reason.Message)
	}

	var body tokenResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("decode renewal response: %w", err)
	}
	if body.Token == "" {
		return "", fmt.Errorf("renewal response carried no token")
	}
	return body.Token, nil
}

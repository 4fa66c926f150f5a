// Package authclient is the client side of the credential lifecycle: an
// http.RoundTripper that attaches the bearer token, renews it once when the
// server answers requiresRefresh, replays the failed call and forces a new
// login when renewal is no longer possible.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrLoginRequired is returned when the credential cannot be renewed.
var ErrLoginRequired = errors.New("authclient: login required")

const maxFailureBody = 64 << 10

type retriedKey struct{}

// failure mirrors the server's rejection body.
type failure struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	RequiresRefresh bool   `json:"requiresRefresh"`
	RequiresLogin   bool   `json:"requiresLogin"`
	IsExpired       bool   `json:"is_expired"`
}

// Transport is an http.RoundTripper implementing the renewal agent.
type Transport struct {
	// Base performs the requests; http.DefaultTransport when nil.
	Base http.RoundTripper
	// Store holds the current token.
	Store TokenStore
	// Renewer exchanges the current token for a successor.
	Renewer Renewer
	// Coordinator serialises renewals; one is created on first use when nil.
	Coordinator *Coordinator
	// OnLoginRequired is called when stored credentials were discarded.
	OnLoginRequired func()
	// RenewTimeout bounds a single renewal call. Defaults to 10s.
	RenewTimeout time.Duration
	Logger       *zap.Logger

	coordOnce sync.Once
	coord     *Coordinator
}

// NewTransport returns a Transport over base with its own Coordinator.
func NewTransport(base http.RoundTripper, store TokenStore, renewer Renewer) *Transport {
	return &Transport{Base: base, Store: store, Renewer: renewer, Coordinator: NewCoordinator()}
}

// Renewer calls the server's renewal endpoint. It must not send through the
// Transport it serves.
type Renewer interface {
	Renew(ctx context.Context, current string) (string, error)
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	sent := t.Store.Token()
	resp, err := t.send(req, body, sent)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	reason, err := readFailure(resp)
	if err != nil {
		return resp, nil
	}

	retried, _ := req.Context().Value(retriedKey{}).(bool)
	if !reason.RequiresRefresh || retried {
		if reason.RequiresLogin || reason.RequiresRefresh {
			t.loginRequired("credential rejected", reason.Message)
		}
		return resp, nil
	}

	drain(resp)
	next, err := t.currentOrRenew(req.Context(), sent)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoginRequired, err)
	}

	replay := req.WithContext(context.WithValue(req.Context(), retriedKey{}, true))
	return t.replay(replay, body, next)
}

// replay sends the request once more with token. It never renews again.
func (t *Transport) replay(req *http.Request, body []byte, token string) (*http.Response, error) {
	resp, err := t.send(req, body, token)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if reason, err := readFailure(resp); err == nil && (reason.RequiresLogin || reason.RequiresRefresh) {
		t.loginRequired("credential rejected after renewal", reason.Message)
	}
	return resp, nil
}

// currentOrRenew skips the renewal when another call already replaced the
// token this request was sent with.
func (t *Transport) currentOrRenew(ctx context.Context, sent string) (string, error) {
	if current := t.Store.Token(); current != "" && current != sent {
		return current, nil
	}
	return t.coordinator().Renew(ctx, func(ctx context.Context) (string, error) {
		return t.renew(ctx, sent)
	})
}

func (t *Transport) renew(ctx context.Context, sent string) (string, error) {
	timeout := t.RenewTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	current := t.Store.Token()
	if current != "" && current != sent {
		return current, nil
	}
	if current == "" || t.Renewer == nil {
		t.loginRequired("no credential to renew", "")
		return "", ErrLoginRequired
	}

	next, err := t.Renewer.Renew(ctx, current)
	if err != nil {
		t.loginRequired("credential renewal failed", err.Error())
		return "", err
	}
	t.Store.SetToken(next)
	t.logger().Debug("credential renewed")
	return next, nil
}

func (t *Transport) loginRequired(msg, reason string) {
	if !t.Store.Clear() {
		return
	}
	t.logger().Info(msg, zap.String("reason", reason))
	if t.OnLoginRequired != nil {
		t.OnLoginRequired()
	}
}

func (t *Transport) send(req *http.Request, body []byte, token string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.ContentLength = int64(len(body))
	}
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return t.base().RoundTrip(out)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// coordinator resolves the Coordinator once; Coordinator must not be
// reassigned after the first request.
func (t *Transport) coordinator() *Coordinator {
	t.coordOnce.Do(func() {
		t.coord = t.Coordinator
		if t.coord == nil {
			t.coord = NewCoordinator()
		}
	})
	return t.coord
}

func (t *Transport) logger() *zap.Logger {
	if t.Logger == nil {
		return zap.NewNop()
	}
	return t.Logger
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	return body, nil
}

// readFailure decodes a rejection body and restores it for the caller.
func readFailure(resp *http.Response) (failure, error) {
	var reason failure
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxFailureBody))
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return reason, err
	}
	if err := json.Unmarshal(raw, &reason); err != nil {
		return reason, err
	}
	return reason, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

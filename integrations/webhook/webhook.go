// Package webhook forwards unlock and level-up events to HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"triviakit/core"
)

// DefaultEvents are the events forwarded when none are configured.
var DefaultEvents = []core.EventType{core.EventAchievementUnlocked, core.EventBeltUnlocked, core.EventLevelUp}

// SignatureHeader carries the hex HMAC-SHA256 of the body when a secret is set.
const SignatureHeader = "X-Triviakit-Signature"

// Subscriber is the part of the event bus the sink listens to.
type Subscriber interface {
	Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func()
}

// Sink posts domain events to configured HTTP endpoints.
// Delivery is synchronous; run it behind an async bus.
type Sink struct {
	client    *http.Client
	endpoints []string
	secret    []byte
	log       *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 2s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithSecret signs every body with secret.
func WithSecret(secret string) Option {
	return func(s *Sink) { s.secret = []byte(secret) }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a webhook sink.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client: &http.Client{Timeout: 2 * time.Second},
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	return s
}

// Attach subscribes the sink to types on bus, DefaultEvents when empty.
func (s *Sink) Attach(bus Subscriber, types ...core.EventType) func() {
	if len(types) == 0 {
		types = DefaultEvents
	}
	unsubs := make([]func(), 0, len(types))
	for _, typ := range types {
		unsubs = append(unsubs, bus.Subscribe(typ, s.Deliver))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// OnEvent lets the sink act as an analytics hook.
func (s *Sink) OnEvent(e core.Event) { s.Deliver(context.Background(), e) }

// Deliver posts the event JSON to every endpoint, logging failures.
func (s *Sink) Deliver(ctx context.Context, e core.Event) {
	if len(s.endpoints) == 0 {
		return
	}
	body, err := json.Marshal(e)
	if err != nil {
		s.log.Error("webhook encode failed", slog.String("event", string(e.Type)), slog.Any("error", err))
		return
	}
	for _, ep := range s.endpoints {
		if err := s.post(ctx, ep, body); err != nil {
			s.log.Warn("webhook delivery failed",
				slog.String("endpoint", ep),
				slog.String("event", string(e.Type)),
				slog.String("user_id", string(e.UserID)),
				slog.Any("error", err))
		}
	}
}

func (s *Sink) post(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if len(s.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(s.secret, body))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Package settings serves platform-wide configuration that admins edit at
// runtime: payout rules, chat texts and branding.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"dropship-platform/internal/apperr"
)

type Repository interface {
	Get(ctx context.Context, key string) (Record, bool, error)
	Put(ctx context.Context, rec Record) error
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) Payout(ctx context.Context) (Payout, error) {
	out := defaultPayout()
	err := s.load(ctx, KeyPayout, &out)
	return out, err
}

func (s *Service) UpdatePayout(ctx context.Context, adminID string, p Payout) (Payout, error) {
	if p.MinPayout.IsNegative() {
		return Payout{}, apperr.ErrInvalidAmount.WithMessage("min payout must not be negative")
	}
	methods := make([]string, 0, len(p.EnabledMethods))
	for _, m := range p.EnabledMethods {
		if m = strings.TrimSpace(m); m != "" {
			methods = append(methods, m)
		}
	}
	p.EnabledMethods = methods
	return p, s.store(ctx, KeyPayout, adminID, p)
}

func (s *Service) Chat(ctx context.Context) (Chat, error) {
	out := defaultChat()
	err := s.load(ctx, KeyChat, &out)
	return out, err
}

func (s *Service) UpdateChat(ctx context.Context, adminID string, c Chat) (Chat, error) {
	if strings.TrimSpace(c.WelcomeMessage) == "" || strings.TrimSpace(c.ClosingMessage) == "" {
		return Chat{}, apperr.ErrInvalidArgument.WithMessage("welcome and closing messages are required")
	}
	return c, s.store(ctx, KeyChat, adminID, c)
}

func (s *Service) Branding(ctx context.Context) (Branding, error) {
	out := defaultBranding()
	err := s.load(ctx, KeyBranding, &out)
	return out, err
}

func (s *Service) UpdateBranding(ctx context.Context, adminID string, b Branding) (Branding, error) {
	if strings.TrimSpace(b.PlatformName) == "" {
		return Branding{}, apperr.ErrInvalidArgument.WithMessage("platform name is required")
	}
	return b, s.store(ctx, KeyBranding, adminID, b)
}

// ClosingText renders the chat closing message for reason.
func (c Chat) ClosingText(reason string) string {
	if reason == "" {
		reason = "resolved"
	}
	return strings.ReplaceAll(c.ClosingMessage, "{reason}", reason)
}

// load overlays the stored JSON onto dst, which already holds the defaults.
func (s *Service) load(ctx context.Context, key string, dst any) error {
	if s.repo == nil {
		return errors.New("settings: repository not configured")
	}
	rec, ok, err := s.repo.Get(ctx, key)
	if err != nil {
		return apperr.Remote("load settings", err)
	}
	if !ok {
		return nil
	}
	if err := json.Unmarshal(rec.Value, dst); err != nil {
		return fmt.Errorf("settings %s: %w", key, err)
	}
	return nil
}

func (s *Service) store(ctx context.Context, key, adminID string, v any) error {
	if s.repo == nil {
		return errors.New("settings: repository not configured")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.repo.Put(ctx, Record{Key: key, Value: raw, UpdatedBy: adminID, UpdatedAt: s.clock().UTC()}); err != nil {
		return apperr.Remote("save settings", err)
	}
	return nil
}

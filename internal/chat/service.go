// Package chat runs the support conversation between a dropshipper and the
// support team.
//
// Session lifecycle: waiting_for_support -> active -> closed, and back to
// waiting_for_support when the user writes again after a close. Sending a
// message never assigns an agent; only a Reassigner does.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"dropship-platform/internal/apperr"
	"dropship-platform/internal/audit"
	"dropship-platform/internal/domain"
	"dropship-platform/internal/notify"
	"dropship-platform/internal/realtime"
	"dropship-platform/internal/settings"
	"dropship-platform/internal/store"
	"dropship-platform/pkg/logger"

	"github.com/google/uuid"
)

const maxMessageLen = 4000

type Service struct {
	store      store.Store
	settings   *settings.Service
	reassigner Reassigner
	aliases    Aliases
	presence   *Presence
	notifier   notify.Notifier
	events     realtime.Publisher
	audit      *audit.Service
	clock      func() time.Time
}

type Deps struct {
	Settings   *settings.Service
	Reassigner Reassigner
	Aliases    Aliases
	Presence   *Presence
	Notifier   notify.Notifier
	Events     realtime.Publisher
	Audit      *audit.Service
}

func NewService(st store.Store, d Deps) *Service {
	s := &Service{
		store:      st,
		settings:   d.Settings,
		reassigner: d.Reassigner,
		aliases:    d.Aliases,
		presence:   d.Presence,
		notifier:   d.Notifier,
		events:     d.Events,
		audit:      d.Audit,
		clock:      time.Now,
	}
	if s.reassigner == nil {
		s.reassigner = NewLocalReassigner(st)
	}
	if s.aliases == nil {
		s.aliases = NewMemoryAliases()
	}
	if s.notifier == nil {
		s.notifier = notify.Discard{}
	}
	if s.events == nil {
		s.events = realtime.Nop{}
	}
	return s
}

type SendResult struct {
	Message domain.ChatMessage `json:"message"`
	// Welcome is the automated reply to the first user message of a conversation.
	Welcome *domain.ChatMessage `json:"welcome,omitempty"`
	Session domain.ChatSession  `json:"session"`
}

type SessionSummary struct {
	Session  domain.ChatSession `json:"session"`
	Alias    string             `json:"alias"`
	Unread   int                `json:"unread"`
	Presence PresenceState      `json:"presence"`
}

/* ===================== USER SIDE ===================== */

func (s *Service) SendUserMessage(ctx context.Context, userID, text string) (SendResult, error) {
	text, err := cleanMessage(text)
	if err != nil {
		return SendResult{}, err
	}
	cfg, err := s.settings.Chat(ctx)
	if err != nil {
		return SendResult{}, err
	}

	var res SendResult
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := s.clock().UTC()
		sess, err := lockOrCreate(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		if sess.Status == domain.ChatClosed {
			sess.Status = domain.ChatWaitingForSupport
			sess.CloseReason = ""
		}

		prior, err := tx.CountMessagesFrom(ctx, userID, domain.SenderUser, sess.VisibleSince())
		if err != nil {
			return err
		}
		res.Message = newMessage(userID, domain.SenderUser, userID, text, now)
		if err := tx.InsertChatMessage(ctx, res.Message); err != nil {
			return err
		}
		if prior == 0 && cfg.WelcomeMessage != "" {
			w := newMessage(userID, domain.SenderAdmin, "", cfg.WelcomeMessage, now.Add(time.Millisecond))
			if err := tx.InsertChatMessage(ctx, w); err != nil {
				return err
			}
			res.Welcome = &w
		}

		sess.UpdatedAt = now
		res.Session = sess
		return tx.UpsertChatSession(ctx, sess)
	})
	if err != nil {
		return SendResult{}, err
	}

	s.publishMessage(ctx, res.Message)
	if res.Welcome != nil {
		s.publishMessage(ctx, *res.Welcome)
		s.notifier.Enqueue(ctx, notify.Intent{
			Channel:  notify.ChannelInApp,
			Audience: notify.AudienceAdmin,
			Type:     "new_chat",
			Title:    "New support chat",
			Message:  preview(text),
			Data:     map[string]any{"userId": userID},
		})
	}
	s.publishSession(ctx, res.Session)
	return res, nil
}

// StartNewConversation hides earlier messages from the user. Nothing is deleted.
func (s *Service) StartNewConversation(ctx context.Context, userID string) (domain.ChatSession, error) {
	var out domain.ChatSession
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := s.clock().UTC()
		sess, err := lockOrCreate(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		cleared := now
		sess.UserMessagesClearedAt = &cleared
		sess.Status = domain.ChatActive
		sess.CloseReason = ""
		sess.UpdatedAt = now
		out = sess
		return tx.UpsertChatSession(ctx, sess)
	})
	if err != nil {
		return domain.ChatSession{}, err
	}
	s.publishSession(ctx, out)
	return out, nil
}

// Messages returns the user's visible window, oldest first.
func (s *Service) Messages(ctx context.Context, userID string) ([]domain.ChatMessage, error) {
	sess, err := s.store.GetChatSession(ctx, userID)
	if errors.Is(err, apperr.ErrSessionNotFound) {
		return []domain.ChatMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.store.ListChatMessages(ctx, userID, sess.VisibleSince())
}

func (s *Service) Session(ctx context.Context, userID string) (domain.ChatSession, error) {
	return s.store.GetChatSession(ctx, userID)
}

// UnreadCount counts unread messages sent to reader by the other side.
func (s *Service) UnreadCount(ctx context.Context, userID string, reader domain.SenderRole) (int, error) {
	since := time.Time{}
	if reader == domain.SenderUser {
		sess, err := s.store.GetChatSession(ctx, userID)
		if errors.Is(err, apperr.ErrSessionNotFound) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		since = sess.VisibleSince()
	}
	return s.store.CountUnread(ctx, userID, reader.Counterparts(), since)
}

// MarkAsRead marks the other side's messages as read. The reader's own
// messages keep their state.
func (s *Service) MarkAsRead(ctx context.Context, userID string, reader domain.SenderRole) (int, error) {
	var n int
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		n, err = tx.MarkRead(ctx, userID, reader.Counterparts(), s.clock().UTC())
		return err
	})
	return n, err
}

/* ===================== SUPPORT SIDE ===================== */

func (s *Service) SendAdminMessage(ctx context.Context, agentID, userID, text string) (SendResult, error) {
	text, err := cleanMessage(text)
	if err != nil {
		return SendResult{}, err
	}

	var res SendResult
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sess, err := tx.LockChatSession(ctx, userID)
		if err != nil {
			return err
		}
		if sess.Status == domain.ChatClosed {
			return apperr.ErrInvalidTransition.WithMessage("chat is closed")
		}
		now := s.clock().UTC()
		if sess.Status == domain.ChatWaitingForSupport {
			sess.Status = domain.ChatActive
		}
		res.Message = newMessage(userID, domain.SenderAdmin, agentID, text, now)
		if err := tx.InsertChatMessage(ctx, res.Message); err != nil {
			return err
		}
		sess.UpdatedAt = now
		res.Session = sess
		return tx.UpsertChatSession(ctx, sess)
	})
	if err != nil {
		return SendResult{}, err
	}

	s.publishMessage(ctx, res.Message)
	s.publishSession(ctx, res.Session)
	s.notifier.Enqueue(ctx, notify.Intent{
		Channel:  notify.ChannelInApp,
		Audience: notify.AudienceUser,
		UserID:   userID,
		Type:     "chat_reply",
		Title:    "New message from support",
		Message:  preview(text),
	})
	return res, nil
}

// EndChat closes the session, releases the assigned agent and posts the closing message.
func (s *Service) EndChat(ctx context.Context, actorID, userID, reason string) (domain.ChatSession, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "resolved"
	}
	cfg, err := s.settings.Chat(ctx)
	if err != nil {
		return domain.ChatSession{}, err
	}

	var out domain.ChatSession
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sess, err := tx.LockChatSession(ctx, userID)
		if err != nil {
			return err
		}
		if sess.Status == domain.ChatClosed {
			return apperr.ErrInvalidTransition.WithMessage("chat is already closed")
		}
		now := s.clock().UTC()
		sess.Status = domain.ChatClosed
		sess.CloseReason = reason
		if sess.AssignedAgentID != "" {
			sess.PreviousAgentID = sess.AssignedAgentID
			sess.AssignedAgentID = ""
			if _, err := tx.AdjustAgentChats(ctx, sess.PreviousAgentID, -1); err != nil {
				return err
			}
		}
		if err := tx.InsertChatMessage(ctx, newMessage(userID, domain.SenderSystem, actorID, cfg.ClosingText(reason), now)); err != nil {
			return err
		}
		sess.UpdatedAt = now
		out = sess
		return tx.UpsertChatSession(ctx, sess)
	})
	if err != nil {
		return domain.ChatSession{}, err
	}

	if err := s.aliases.Delete(ctx, userID); err != nil {
		logger.From(ctx).Warn("chat alias delete failed", slog.String("user_id", userID), slog.Any("err", err))
	}
	s.publishSession(ctx, out)
	s.notifier.Enqueue(ctx, notify.Intent{
		Channel:  notify.ChannelInApp,
		Audience: notify.AudienceUser,
		UserID:   userID,
		Type:     "chat_closed",
		Title:    "Chat closed",
		Message:  cfg.ClosingText(reason),
	})
	return out, nil
}

// AdminMessages returns the full history, including messages hidden from the user.
func (s *Service) AdminMessages(ctx context.Context, userID string) ([]domain.ChatMessage, error) {
	return s.store.ListChatMessages(ctx, userID, time.Time{})
}

func (s *Service) ListSessions(ctx context.Context, status domain.ChatStatus) ([]SessionSummary, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.ErrInvalidArgument.WithMessage("unknown chat status %q", status)
	}
	sessions, err := s.store.ListChatSessions(ctx, status)
	if err != nil {
		return nil, err
	}
	out := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		unread, err := s.store.CountUnread(ctx, sess.UserID, domain.SenderAdmin.Counterparts(), time.Time{})
		if err != nil {
			return nil, err
		}
		alias, err := s.aliases.Alias(ctx, sess.UserID)
		if err != nil {
			logger.From(ctx).Warn("chat alias lookup failed", slog.String("user_id", sess.UserID), slog.Any("err", err))
		}
		sum := SessionSummary{Session: sess, Alias: alias, Unread: unread, Presence: PresenceOffline}
		if s.presence != nil {
			sum.Presence = s.presence.State(sess.UserID)
		}
		out = append(out, sum)
	}
	return out, nil
}

func (s *Service) Assign(ctx context.Context, adminID, userID, agentID, reason string) (domain.ChatSession, error) {
	if agentID == "" {
		return domain.ChatSession{}, apperr.ErrInvalidArgument.WithMessage("agent is required")
	}
	return s.reassign(ctx, Assignment{
		Action:        ActionManualAssign,
		UserID:        userID,
		TargetAgentID: agentID,
		AdminID:       adminID,
		TriggerReason: reason,
	})
}

func (s *Service) Unassign(ctx context.Context, adminID, userID, reason string) (domain.ChatSession, error) {
	return s.reassign(ctx, Assignment{
		Action:        ActionManualUnassign,
		UserID:        userID,
		AdminID:       adminID,
		TriggerReason: reason,
	})
}

func (s *Service) reassign(ctx context.Context, a Assignment) (domain.ChatSession, error) {
	if _, err := s.store.GetChatSession(ctx, a.UserID); err != nil {
		return domain.ChatSession{}, err
	}
	if a.TriggerReason == "" {
		a.TriggerReason = "admin_manual"
	}
	if err := s.reassigner.Reassign(ctx, a); err != nil {
		return domain.ChatSession{}, err
	}
	sess, err := s.store.GetChatSession(ctx, a.UserID)
	if err != nil {
		return domain.ChatSession{}, err
	}

	s.audit.Record(ctx, audit.Event{
		Type:          audit.EventChatAssignment,
		ActorUserID:   a.AdminID,
		SubjectUserID: a.UserID,
		EntityType:    "chat_session",
		EntityID:      a.UserID,
		Message:       a.Action,
	}, a)
	s.publishSession(ctx, sess)
	return sess, nil
}

// PublishPresence is the Presence change callback.
func (s *Service) PublishPresence(userID string, st PresenceState) {
	s.events.Publish(context.Background(), realtime.Event{
		Type:     realtime.EventPresenceChanged,
		UserID:   userID,
		EntityID: userID,
		Data:     map[string]string{"state": string(st)},
	})
}

func (s *Service) publishMessage(ctx context.Context, m domain.ChatMessage) {
	s.events.Publish(ctx, realtime.Event{Type: realtime.EventChatMessage, UserID: m.UserID, EntityID: m.ID, Data: m})
}

func (s *Service) publishSession(ctx context.Context, sess domain.ChatSession) {
	s.events.Publish(ctx, realtime.Event{Type: realtime.EventChatSession, UserID: sess.UserID, EntityID: sess.UserID, Data: sess})
}

// lockOrCreate inserts the session row before locking it, so two first
// messages racing for a new user serialize on the same row and only one of
// them sees no prior messages.
func lockOrCreate(ctx context.Context, tx store.Tx, userID string, now time.Time) (domain.ChatSession, error) {
	if err := tx.InsertChatSessionIfAbsent(ctx, domain.ChatSession{
		UserID:    userID,
		Status:    domain.ChatWaitingForSupport,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return domain.ChatSession{}, err
	}
	return tx.LockChatSession(ctx, userID)
}

func newMessage(userID string, role domain.SenderRole, senderID, text string, at time.Time) domain.ChatMessage {
	return domain.ChatMessage{
		ID:         uuid.NewString(),
		UserID:     userID,
		SenderRole: role,
		SenderID:   senderID,
		Message:    text,
		CreatedAt:  at,
	}
}

func cleanMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperr.Validation("empty_message", "message must not be empty")
	}
	if len(text) > maxMessageLen {
		return "", apperr.Validation("message_too_long", "message is too long")
	}
	return text, nil
}

func preview(text string) string {
	r := []rune(text)
	if len(r) <= 80 {
		return text
	}
	return string(r[:80]) + "..."
}

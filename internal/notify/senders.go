package notify

import (
	"context"

	"dropship-platform/internal/functions"

	"github.com/google/uuid"
)

// EmailSender delivers through the send-notification-email function.
type EmailSender struct {
	fn         functions.Invoker
	adminEmail string
}

func NewEmailSender(fn functions.Invoker, adminEmail string) *EmailSender {
	return &EmailSender{fn: fn, adminEmail: adminEmail}
}

func (s *EmailSender) Send(ctx context.Context, in Intent) error {
	to := in.Email
	if to == "" && in.Audience == AudienceAdmin {
		to = s.adminEmail
	}
	if to == "" {
		return permanent("no recipient for %s", in.Type)
	}

	body := make(map[string]any, len(in.Data)+4)
	for k, v := range in.Data {
		body[k] = v
	}
	body["type"] = in.Type
	body["recipientEmail"] = to
	body["subject"] = in.Title
	body["message"] = in.Message
	return s.fn.Invoke(ctx, functions.SendNotificationEmail, body, nil)
}

// InAppSender stores the notification for the portal or dashboard bell.
type InAppSender struct {
	repo Repository
}

func NewInAppSender(repo Repository) *InAppSender { return &InAppSender{repo: repo} }

func (s *InAppSender) Send(ctx context.Context, in Intent) error {
	if in.Audience == AudienceUser && in.UserID == "" {
		return permanent("in-app notification %s has no user", in.Type)
	}
	n := Notification{
		ID:        uuid.NewString(),
		Audience:  in.Audience,
		Type:      in.Type,
		Title:     in.Title,
		Message:   in.Message,
		CreatedAt: in.CreatedAt,
	}
	if in.Audience == AudienceUser {
		n.UserID = in.UserID
	}
	return s.repo.Insert(ctx, n)
}

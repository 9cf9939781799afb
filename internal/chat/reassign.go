package chat

import (
	"context"

	"dropship-platform/internal/apperr"
	"dropship-platform/internal/domain"
	"dropship-platform/internal/functions"
	"dropship-platform/internal/store"
)

const (
	ActionManualAssign   = "manual_assign"
	ActionManualUnassign = "manual_unassign"
)

// Assignment is the chat-reassignment request body.
type Assignment struct {
	Action        string `json:"action"`
	UserID        string `json:"user_id"`
	TargetAgentID string `json:"target_agent_id,omitempty"`
	AdminID       string `json:"admin_id"`
	TriggerReason string `json:"trigger_reason"`
}

// Reassigner changes which agent owns a chat. It is the only place an agent
// gets attached to a session.
type Reassigner interface {
	Reassign(ctx context.Context, a Assignment) error
}

// RemoteReassigner delegates to the chat-reassignment function, which owns
// the agent counters and backlog policy.
type RemoteReassigner struct {
	fn functions.Invoker
}

func NewRemoteReassigner(fn functions.Invoker) *RemoteReassigner {
	return &RemoteReassigner{fn: fn}
}

func (r *RemoteReassigner) Reassign(ctx context.Context, a Assignment) error {
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty"`
	}
	if err := r.fn.Invoke(ctx, functions.ChatReassignment, a, &resp); err != nil {
		return err
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "chat reassignment was not applied"
		}
		return apperr.Conflict("reassignment_failed", msg)
	}
	return nil
}

// LocalReassigner applies assignments directly against the store.
type LocalReassigner struct {
	store store.Store
}

func NewLocalReassigner(st store.Store) *LocalReassigner {
	return &LocalReassigner{store: st}
}

func (r *LocalReassigner) Reassign(ctx context.Context, a Assignment) error {
	return r.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		s, err := tx.LockChatSession(ctx, a.UserID)
		if err != nil {
			return err
		}
		switch a.Action {
		case ActionManualAssign:
			if a.TargetAgentID == "" {
				return apperr.ErrInvalidArgument.WithMessage("target agent is required")
			}
			if s.Status == domain.ChatClosed {
				return apperr.ErrInvalidTransition.WithMessage("cannot assign a closed chat")
			}
			if s.AssignedAgentID == a.TargetAgentID {
				return nil
			}
			if s.AssignedAgentID != "" {
				if _, err := tx.AdjustAgentChats(ctx, s.AssignedAgentID, -1); err != nil {
					return err
				}
				s.PreviousAgentID = s.AssignedAgentID
			}
			if _, err := tx.AdjustAgentChats(ctx, a.TargetAgentID, 1); err != nil {
				return err
			}
			s.AssignedAgentID = a.TargetAgentID
			if s.Status == domain.ChatWaitingForSupport {
				s.Status = domain.ChatActive
			}
		case ActionManualUnassign:
			if s.AssignedAgentID == "" {
				return nil
			}
			if _, err := tx.AdjustAgentChats(ctx, s.AssignedAgentID, -1); err != nil {
				return err
			}
			s.PreviousAgentID = s.AssignedAgentID
			s.AssignedAgentID = ""
		default:
			return apperr.ErrInvalidArgument.WithMessage("unknown reassignment action %q", a.Action)
		}
		return tx.UpsertChatSession(ctx, s)
	})
}

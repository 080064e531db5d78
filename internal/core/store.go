package core

import (
	"context"
	"time"

	"formate/pkg/schema"
)

// PlanRecord is a stored plan with its share tokens.
type PlanRecord struct {
	ID         string           `json:"id" yaml:"id"`
	Plan       *schema.FormPlan `json:"plan" yaml:"plan"`
	InviteCode string           `json:"inviteCode" yaml:"invite_code"`
	Vanity     string           `json:"vanity,omitempty" yaml:"vanity,omitempty"`
	CreatedAt  time.Time        `json:"createdAt" yaml:"created_at"`
}

// PlanStore persists plans. Plans are immutable once saved.
type PlanStore interface {
	// SavePlan stores a new plan. It fails when the ID, invite code or
	// vanity slug is already taken.
	SavePlan(ctx context.Context, rec *PlanRecord) error

	// GetPlan returns a *NotFoundError for unknown IDs.
	GetPlan(ctx context.Context, id string) (*PlanRecord, error)

	// ResolveInvite maps an invite code or vanity slug to a plan ID.
	ResolveInvite(ctx context.Context, token string) (string, error)
}

// TranscriptStore persists conversations as append-only event logs.
type TranscriptStore interface {
	AppendEvents(ctx context.Context, conversationID string, events ...schema.TranscriptEvent) error

	// LoadTranscript replays a conversation. Unknown conversations yield a
	// *NotFoundError.
	LoadTranscript(ctx context.Context, conversationID string) (*schema.Transcript, error)
}

package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"formate/internal/core"
	"formate/pkg/schema"

	"gopkg.in/yaml.v3"
)

const (
	plansDir         = "plans"
	conversationsDir = "conversations"
	invitesFile      = "invites.yaml"
	endedEventType   = "ConversationEnded"
)

// Repository stores plans, invites and transcripts as YAML files under a
// data directory:
//
//	plans/<plan id>.yaml
//	invites.yaml                  invite code or vanity -> plan id
//	conversations/<conv id>.yaml  append-only event log
//
// Every write runs in a CopyOnWriteTx. Repository implements
// core.PlanStore and core.TranscriptStore.
type Repository struct {
	baseDir string
	logger  core.Logger
	mu      sync.RWMutex
}

var (
	_ core.PlanStore       = (*Repository)(nil)
	_ core.TranscriptStore = (*Repository)(nil)
)

// NewRepository creates a repository rooted at baseDir. The directory is
// created by the first write.
func NewRepository(baseDir string, logger core.Logger) *Repository {
	if logger == nil {
		logger = core.NopLogger()
	}
	return &Repository{baseDir: baseDir, logger: logger}
}

// BaseDir returns the data directory.
func (r *Repository) BaseDir() string {
	return r.baseDir
}

type planFile struct {
	ID         string         `yaml:"id"`
	InviteCode string         `yaml:"invite_code"`
	Vanity     string         `yaml:"vanity,omitempty"`
	CreatedAt  time.Time      `yaml:"created_at"`
	Plan       map[string]any `yaml:"plan"`
}

type conversationFile struct {
	ConversationID string                   `yaml:"conversation_id"`
	Events         []map[string]interface{} `yaml:"events"`
}

// SavePlan writes the plan and registers its invite code and vanity. Plan
// ids and invite tokens are never reused.
func (r *Repository) SavePlan(ctx context.Context, rec *core.PlanRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil || rec.Plan == nil {
		return fmt.Errorf("save plan: missing plan")
	}

	planMap, err := rec.Plan.ToMap()
	if err != nil {
		return err
	}
	planData, err := yaml.Marshal(planFile{
		ID:         rec.ID,
		InviteCode: rec.InviteCode,
		Vanity:     rec.Vanity,
		CreatedAt:  rec.CreatedAt.UTC(),
		Plan:       planMap,
	})
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.withTx(func(tx *CopyOnWriteTx) error {
		path := planPath(rec.ID)
		if tx.Exists(path) {
			return fmt.Errorf("plan %s already exists", rec.ID)
		}

		invites, err := readInvites(tx)
		if err != nil {
			return err
		}
		for _, token := range []string{rec.InviteCode, rec.Vanity} {
			if token == "" {
				continue
			}
			if owner, taken := invites[token]; taken {
				return fmt.Errorf("invite %q already belongs to plan %s", token, owner)
			}
			invites[token] = rec.ID
		}

		inviteData, err := yaml.Marshal(invites)
		if err != nil {
			return fmt.Errorf("marshal invites: %w", err)
		}
		if err := tx.WriteFile(path, planData); err != nil {
			return fmt.Errorf("write plan: %w", err)
		}
		if err := tx.WriteFile(invitesFile, inviteData); err != nil {
			return fmt.Errorf("write invites: %w", err)
		}
		return nil
	})
}

// GetPlan loads a plan by id. The stored plan is validated again on load.
func (r *Repository) GetPlan(ctx context.Context, id string) (*core.PlanRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !safeID(id) {
		return nil, &core.NotFoundError{Kind: "plan", ID: id}
	}

	r.mu.RLock()
	data, err := os.ReadFile(filepath.Join(r.baseDir, planPath(id)))
	r.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &core.NotFoundError{Kind: "plan", ID: id}
		}
		return nil, fmt.Errorf("read plan: %w", err)
	}

	var pf planFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", id, err)
	}
	plan, err := schema.ParsePlan(pf.Plan)
	if err != nil {
		return nil, fmt.Errorf("stored plan %s is invalid: %w", id, err)
	}

	return &core.PlanRecord{
		ID:         pf.ID,
		Plan:       plan,
		InviteCode: pf.InviteCode,
		Vanity:     pf.Vanity,
		CreatedAt:  pf.CreatedAt,
	}, nil
}

// ResolveInvite returns the plan id registered for an invite code or vanity.
func (r *Repository) ResolveInvite(ctx context.Context, token string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.RLock()
	data, err := os.ReadFile(filepath.Join(r.baseDir, invitesFile))
	r.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return "", &core.NotFoundError{Kind: "invite", ID: token}
		}
		return "", fmt.Errorf("read invites: %w", err)
	}

	invites := map[string]string{}
	if err := yaml.Unmarshal(data, &invites); err != nil {
		return "", fmt.Errorf("parse invites: %w", err)
	}
	id, ok := invites[token]
	if !ok {
		return "", &core.NotFoundError{Kind: "invite", ID: token}
	}
	return id, nil
}

// AppendEvents appends events to a conversation log, creating the log on
// first use. An ended conversation takes no more events.
func (r *Repository) AppendEvents(ctx context.Context, convID string, events ...schema.TranscriptEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !safeID(convID) {
		return fmt.Errorf("invalid conversation id %q", convID)
	}
	if len(events) == 0 {
		return nil
	}

	maps := make([]map[string]interface{}, 0, len(events))
	for _, event := range events {
		m, err := eventToMap(event)
		if err != nil {
			return err
		}
		maps = append(maps, m)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.withTx(func(tx *CopyOnWriteTx) error {
		path := conversationPath(convID)
		conv := conversationFile{ConversationID: convID}

		data, err := tx.ReadFile(path)
		if err != nil && !isNotExist(err) {
			return fmt.Errorf("read conversation: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, &conv); err != nil {
				return fmt.Errorf("parse conversation: %w", err)
			}
		}

		for _, m := range conv.Events {
			if m["event_type"] == endedEventType {
				return &core.StateError{ConversationID: convID, Message: "conversation already ended"}
			}
		}
		conv.Events = append(conv.Events, maps...)

		data, err = yaml.Marshal(conv)
		if err != nil {
			return fmt.Errorf("marshal conversation: %w", err)
		}
		if err := tx.WriteFile(path, data); err != nil {
			return fmt.Errorf("write conversation: %w", err)
		}
		return nil
	})
}

// LoadTranscript replays a conversation log.
func (r *Repository) LoadTranscript(ctx context.Context, convID string) (*schema.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !safeID(convID) {
		return nil, &core.NotFoundError{Kind: "conversation", ID: convID}
	}

	r.mu.RLock()
	data, err := os.ReadFile(filepath.Join(r.baseDir, conversationPath(convID)))
	r.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &core.NotFoundError{Kind: "conversation", ID: convID}
		}
		return nil, fmt.Errorf("read conversation: %w", err)
	}

	var conv conversationFile
	if err := yaml.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("parse conversation %s: %w", convID, err)
	}
	tr, err := ReplayEventsFromMaps(conv.Events)
	if err != nil {
		return nil, fmt.Errorf("replay conversation %s: %w", convID, err)
	}
	return tr, nil
}

// withTx runs fn in a transaction, committing on success and rolling back
// on any failure.
func (r *Repository) withTx(fn func(tx *CopyOnWriteTx) error) error {
	tx := NewCopyOnWriteTx(r.baseDir)
	if err := tx.Begin(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error("rollback failed", "dir", r.baseDir, "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error("rollback failed", "dir", r.baseDir, "error", rbErr)
		}
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func readInvites(tx *CopyOnWriteTx) (map[string]string, error) {
	invites := map[string]string{}
	data, err := tx.ReadFile(invitesFile)
	if err != nil {
		if isNotExist(err) {
			return invites, nil
		}
		return nil, fmt.Errorf("read invites: %w", err)
	}
	if err := yaml.Unmarshal(data, &invites); err != nil {
		return nil, fmt.Errorf("parse invites: %w", err)
	}
	if invites == nil {
		invites = map[string]string{}
	}
	return invites, nil
}

func planPath(id string) string {
	return filepath.Join(plansDir, id+".yaml")
}

func conversationPath(id string) string {
	return filepath.Join(conversationsDir, id+".yaml")
}

// safeID rejects ids that would escape the data directory.
func safeID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	for _, c := range id {
		if c == '/' || c == '\\' || c == 0 {
			return false
		}
	}
	return true
}

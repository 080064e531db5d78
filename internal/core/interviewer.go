package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"formate/internal/llm/tasks"
	"formate/pkg/flow"
	"formate/pkg/invite"
	"formate/pkg/schema"
)

// ErrNoGenerator is returned by DraftPlan when no model is configured.
var ErrNoGenerator = errors.New("plan drafting is not configured")

// Turn is the state of a conversation after one step.
type Turn struct {
	ConversationID string
	PlanID         string
	Next           flow.NextStep
	Field          *schema.FormField // nil when Next is an end step
	Asked          int
}

// Interviewer runs conversations against stored plans. Each turn loads the
// plan and transcript, records the answer and asks the evaluator what comes
// next.
type Interviewer struct {
	plans       PlanStore
	transcripts TranscriptStore
	generator   PlanGenerator // optional; enables drafting and early-end checks
	logger      Logger
	now         func() time.Time

	mu    sync.Mutex
	locks map[string]*convLock
}

// convLock serializes the read-decide-append cycle of one conversation.
type convLock struct {
	mu   sync.Mutex
	refs int
}

// NewInterviewer creates an Interviewer. generator may be nil.
func NewInterviewer(plans PlanStore, transcripts TranscriptStore, generator PlanGenerator, logger Logger) *Interviewer {
	if logger == nil {
		logger = NopLogger()
	}
	return &Interviewer{
		plans:       plans,
		transcripts: transcripts,
		generator:   generator,
		logger:      logger,
		now:         time.Now,
		locks:       map[string]*convLock{},
	}
}

// CreatePlan validates a raw plan payload and stores it with a fresh invite
// code. vanity is optional.
func (iv *Interviewer) CreatePlan(ctx context.Context, raw any, vanity string) (*PlanRecord, error) {
	plan, err := schema.ParsePlan(raw)
	if err != nil {
		return nil, err
	}
	return iv.storePlan(ctx, plan, vanity)
}

// DraftPlan asks the model for a plan and stores it.
func (iv *Interviewer) DraftPlan(ctx context.Context, input *tasks.PlanGenInput, vanity string) (*PlanRecord, error) {
	if iv.generator == nil {
		return nil, ErrNoGenerator
	}
	plan, err := iv.generator.GeneratePlan(ctx, input)
	if err != nil {
		return nil, err
	}
	// Generated plans pass through the same gate as uploaded ones.
	if err := schema.ValidatePlan(plan); err != nil {
		return nil, err
	}
	return iv.storePlan(ctx, plan, vanity)
}

func (iv *Interviewer) storePlan(ctx context.Context, plan *schema.FormPlan, vanity string) (*PlanRecord, error) {
	id, err := schema.NewPlanID()
	if err != nil {
		return nil, err
	}
	code, err := invite.GenerateShortCode()
	if err != nil {
		return nil, err
	}

	rec := &PlanRecord{
		ID:         id,
		Plan:       plan,
		InviteCode: code.Value,
		CreatedAt:  iv.now().UTC(),
	}

	if vanity != "" {
		tok, err := invite.ParseVanityOrCode(vanity)
		if err != nil || tok.Kind != invite.KindVanity {
			return nil, &ValidationError{Field: "vanity", Message: fmt.Sprintf("%q is not a valid vanity slug", vanity), Err: err}
		}
		rec.Vanity = tok.Value

		_, err = iv.plans.ResolveInvite(ctx, rec.Vanity)
		var nf *NotFoundError
		switch {
		case err == nil:
			return nil, &ValidationError{Field: "vanity", Message: fmt.Sprintf("%q is already taken", rec.Vanity)}
		case !errors.As(err, &nf):
			return nil, fmt.Errorf("check vanity: %w", err)
		}
	}

	if err := iv.plans.SavePlan(ctx, rec); err != nil {
		return nil, fmt.Errorf("save plan: %w", err)
	}

	iv.logger.Info("plan stored", "plan_id", rec.ID, "fields", len(plan.Fields), "invite", rec.InviteCode)
	return rec, nil
}

// Plan returns a stored plan.
func (iv *Interviewer) Plan(ctx context.Context, id string) (*PlanRecord, error) {
	return iv.plans.GetPlan(ctx, id)
}

// ResolvePlan accepts a plan ID, invite code, vanity slug or share URL and
// returns the plan it names.
func (iv *Interviewer) ResolvePlan(ctx context.Context, ref string) (*PlanRecord, error) {
	rec, err := iv.plans.GetPlan(ctx, ref)
	if err == nil {
		return rec, nil
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		return nil, err
	}

	tok, perr := invite.ParseVanityOrCode(ref)
	if perr != nil {
		return nil, &NotFoundError{Kind: "plan", ID: ref}
	}
	id, err := iv.plans.ResolveInvite(ctx, tok.Value)
	if err != nil {
		return nil, err
	}
	return iv.plans.GetPlan(ctx, id)
}

// Start opens a conversation on a plan and returns its first question.
func (iv *Interviewer) Start(ctx context.Context, planID string) (*Turn, error) {
	rec, err := iv.plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	eventID, err := schema.NewEventID()
	if err != nil {
		return nil, err
	}
	convID := schema.NewConversationID()
	started := &schema.ConversationStarted{
		EventID_:       eventID,
		ConversationID: convID,
		PlanID:         rec.ID,
		Timestamp_:     iv.now().UTC(),
	}

	events := []schema.TranscriptEvent{started}
	next := flow.First(rec.Plan)
	if next.IsEnd() {
		ended, err := iv.endEvent(string(next.Reason))
		if err != nil {
			return nil, err
		}
		events = append(events, ended)
	}

	if err := iv.transcripts.AppendEvents(ctx, convID, events...); err != nil {
		return nil, fmt.Errorf("start conversation: %w", err)
	}

	iv.logger.Info("conversation started", "conversation_id", convID, "plan_id", rec.ID)
	return iv.turn(convID, rec, next, 0), nil
}

// Answer records an answer for fieldID and decides the next step. raw is
// the answer as received (string, number, bool, list or nil).
func (iv *Interviewer) Answer(ctx context.Context, convID, fieldID string, raw any) (*Turn, error) {
	unlock := iv.lockConversation(convID)
	defer unlock()

	tr, rec, err := iv.load(ctx, convID)
	if err != nil {
		return nil, err
	}
	if tr.Ended {
		return nil, &StateError{ConversationID: convID, Message: "conversation already ended"}
	}

	field, ok := rec.Plan.Field(fieldID)
	if !ok {
		return nil, &ValidationError{Field: fieldID, Message: "field is not part of the plan"}
	}
	answer, err := schema.ParseStoredAnswer(raw)
	if err != nil {
		return nil, &ValidationError{Field: fieldID, Message: err.Error(), Err: err}
	}
	if err := schema.CheckAnswer(field, answer); err != nil {
		var ae *schema.AnswerError
		if errors.As(err, &ae) {
			return nil, &ValidationError{Field: fieldID, Message: ae.Message, Err: err}
		}
		return nil, err
	}

	eventID, err := schema.NewEventID()
	if err != nil {
		return nil, err
	}
	recorded := &schema.AnswerRecorded{
		EventID_:   eventID,
		FieldID:    fieldID,
		Answer:     answer,
		Timestamp_: iv.now().UTC(),
	}
	if err := tr.Apply(recorded); err != nil {
		return nil, err
	}

	next := flow.Decide(rec.Plan, tr.Answers, fieldID)
	if !next.IsEnd() {
		next = iv.checkEarlyEnd(ctx, rec.Plan, tr.Answers, next)
	}

	events := []schema.TranscriptEvent{recorded}
	if next.IsEnd() {
		ended, err := iv.endEvent(string(next.Reason))
		if err != nil {
			return nil, err
		}
		events = append(events, ended)
	}

	if err := iv.transcripts.AppendEvents(ctx, convID, events...); err != nil {
		return nil, fmt.Errorf("record answer: %w", err)
	}

	iv.logger.Debug("answer recorded",
		"conversation_id", convID,
		"field_id", fieldID,
		"next", next.String(),
		"asked", tr.Asked(),
	)
	return iv.turn(convID, rec, next, tr.Asked()), nil
}

// checkEarlyEnd consults the model when the plan lets it end conversations.
// Model failures never interrupt the interview.
func (iv *Interviewer) checkEarlyEnd(ctx context.Context, plan *schema.FormPlan, answers *schema.AnswerSet, next flow.NextStep) flow.NextStep {
	if iv.generator == nil || !plan.Stopping.LLMMayEnd || len(plan.Stopping.EndReasons) == 0 {
		return next
	}

	out, err := iv.generator.CheckEnd(ctx, &tasks.EndCheckInput{Plan: plan, Answers: answers})
	if err != nil {
		iv.logger.Warn("end check failed", "error", err.Error())
		return next
	}
	if !out.End {
		return next
	}
	if !flow.MayEnd(plan, schema.EndReason(out.Reason)) {
		iv.logger.Warn("end check returned a reason the plan does not permit", "reason", out.Reason)
		return next
	}
	return flow.End(flow.Reason(out.Reason))
}

// End closes a conversation early for reason. The plan's stopping policy
// must permit it.
func (iv *Interviewer) End(ctx context.Context, convID string, reason schema.EndReason) (*Turn, error) {
	unlock := iv.lockConversation(convID)
	defer unlock()

	tr, rec, err := iv.load(ctx, convID)
	if err != nil {
		return nil, err
	}
	if tr.Ended {
		return nil, &StateError{ConversationID: convID, Message: "conversation already ended"}
	}
	if !flow.MayEnd(rec.Plan, reason) {
		return nil, &PolicyError{PlanID: rec.ID, Reason: string(reason)}
	}

	ended, err := iv.endEvent(string(reason))
	if err != nil {
		return nil, err
	}
	if err := iv.transcripts.AppendEvents(ctx, convID, ended); err != nil {
		return nil, fmt.Errorf("end conversation: %w", err)
	}

	iv.logger.Info("conversation ended early", "conversation_id", convID, "reason", reason)
	return iv.turn(convID, rec, flow.End(flow.Reason(reason)), tr.Asked()), nil
}

// Current recomputes where a conversation stands without changing it.
func (iv *Interviewer) Current(ctx context.Context, convID string) (*Turn, error) {
	tr, rec, err := iv.load(ctx, convID)
	if err != nil {
		return nil, err
	}

	var next flow.NextStep
	switch {
	case tr.Ended:
		next = flow.End(flow.Reason(tr.EndReason))
	case tr.Asked() == 0:
		next = flow.First(rec.Plan)
	default:
		next = flow.Decide(rec.Plan, tr.Answers, tr.LastFieldID)
	}
	return iv.turn(convID, rec, next, tr.Asked()), nil
}

// Transcript returns the replayed conversation.
func (iv *Interviewer) Transcript(ctx context.Context, convID string) (*schema.Transcript, error) {
	return iv.transcripts.LoadTranscript(ctx, convID)
}

// lockConversation holds convID until the returned func is called. Stores
// also refuse events after ConversationEnded, which covers writers in other
// processes.
func (iv *Interviewer) lockConversation(convID string) func() {
	iv.mu.Lock()
	l, ok := iv.locks[convID]
	if !ok {
		l = &convLock{}
		iv.locks[convID] = l
	}
	l.refs++
	iv.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		iv.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(iv.locks, convID)
		}
		iv.mu.Unlock()
	}
}

func (iv *Interviewer) load(ctx context.Context, convID string) (*schema.Transcript, *PlanRecord, error) {
	tr, err := iv.transcripts.LoadTranscript(ctx, convID)
	if err != nil {
		return nil, nil, err
	}
	rec, err := iv.plans.GetPlan(ctx, tr.PlanID)
	if err != nil {
		return nil, nil, fmt.Errorf("load plan for conversation %s: %w", convID, err)
	}
	return tr, rec, nil
}

func (iv *Interviewer) endEvent(reason string) (*schema.ConversationEnded, error) {
	eventID, err := schema.NewEventID()
	if err != nil {
		return nil, err
	}
	return &schema.ConversationEnded{
		EventID_:   eventID,
		Reason:     reason,
		Timestamp_: iv.now().UTC(),
	}, nil
}

func (iv *Interviewer) turn(convID string, rec *PlanRecord, next flow.NextStep, asked int) *Turn {
	t := &Turn{
		ConversationID: convID,
		PlanID:         rec.ID,
		Next:           next,
		Asked:          asked,
	}
	if !next.IsEnd() {
		t.Field, _ = rec.Plan.Field(next.FieldID)
	}
	return t
}

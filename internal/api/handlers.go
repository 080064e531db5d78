package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"formate/internal/core"
	"formate/internal/llm/tasks"
	"formate/pkg/flow"
	"formate/pkg/invite"
	"formate/pkg/schema"
)

type planResponse struct {
	ID         string           `json:"id"`
	Plan       *schema.FormPlan `json:"plan"`
	InviteCode string           `json:"inviteCode"`
	Vanity     string           `json:"vanity,omitempty"`
	ShareURL   string           `json:"shareUrl"`
	CreatedAt  time.Time        `json:"createdAt"`
}

type turnResponse struct {
	ConversationID string            `json:"conversationId"`
	PlanID         string            `json:"planId"`
	Next           flow.NextStep     `json:"next"`
	Field          *schema.FormField `json:"field,omitempty"`
	Asked          int               `json:"asked"`
}

type conversationResponse struct {
	turnResponse
	Answers   *schema.AnswerSet `json:"answers"`
	Ended     bool              `json:"ended"`
	EndReason string            `json:"endReason,omitempty"`
	StartedAt time.Time         `json:"startedAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

type generateRequest struct {
	Description  string `json:"description"`
	Seed         string `json:"seed,omitempty"`
	MaxQuestions int    `json:"maxQuestions,omitempty"`
	Vanity       string `json:"vanity,omitempty"`
}

type answerRequest struct {
	FieldID string `json:"fieldId"`
	Value   any    `json:"value"`
}

type endRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) newPlanResponse(rec *core.PlanRecord) planResponse {
	share := rec.InviteCode
	if rec.Vanity != "" {
		share = rec.Vanity
	}
	return planResponse{
		ID:         rec.ID,
		Plan:       rec.Plan,
		InviteCode: rec.InviteCode,
		Vanity:     rec.Vanity,
		ShareURL:   invite.Token{Value: share}.ShareURL(s.baseURL),
		CreatedAt:  rec.CreatedAt,
	}
}

func newTurnResponse(t *core.Turn) turnResponse {
	return turnResponse{
		ConversationID: t.ConversationID,
		PlanID:         t.PlanID,
		Next:           t.Next,
		Field:          t.Field,
		Asked:          t.Asked,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreatePlan accepts either a bare plan or {"plan": ..., "vanity": ...}.
func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "request body must be a JSON object")
		return
	}

	var raw any = body
	vanity := ""
	if wrapped, ok := body["plan"]; ok {
		raw = wrapped
		if v, ok := body["vanity"].(string); ok {
			vanity = v
		}
	}

	rec, err := s.interviewer.CreatePlan(r.Context(), raw, vanity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.newPlanResponse(rec))
}

func (s *Server) handleGeneratePlan(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Description == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "description is required", Field: "description"})
		return
	}

	rec, err := s.interviewer.DraftPlan(r.Context(), &tasks.PlanGenInput{
		Description:  req.Description,
		Seed:         req.Seed,
		MaxQuestions: req.MaxQuestions,
	}, req.Vanity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.newPlanResponse(rec))
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	rec, err := s.interviewer.ResolvePlan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.newPlanResponse(rec))
}

func (s *Server) handleStartConversation(w http.ResponseWriter, r *http.Request) {
	rec, err := s.interviewer.ResolvePlan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	turn, err := s.interviewer.Start(r.Context(), rec.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTurnResponse(turn))
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	turn, err := s.interviewer.Current(r.Context(), convID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tr, err := s.interviewer.Transcript(r.Context(), convID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conversationResponse{
		turnResponse: newTurnResponse(turn),
		Answers:      tr.Answers,
		Ended:        tr.Ended,
		EndReason:    tr.EndReason,
		StartedAt:    tr.StartedAt,
		UpdatedAt:    tr.UpdatedAt,
	})
}

// handleAnswer records an answer. An empty fieldId answers the field the
// conversation is currently waiting on.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	fieldID := req.FieldID
	if fieldID == "" {
		cur, err := s.interviewer.Current(r.Context(), convID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if cur.Next.IsEnd() {
			s.writeError(w, r, &core.StateError{ConversationID: convID, Message: "conversation already ended"})
			return
		}
		fieldID = cur.Next.FieldID
	}

	turn, err := s.interviewer.Answer(r.Context(), convID, fieldID, req.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTurnResponse(turn))
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	var req endRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Reason == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "reason is required", Field: "reason"})
		return
	}

	turn, err := s.interviewer.End(r.Context(), chi.URLParam(r, "id"), schema.EndReason(req.Reason))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTurnResponse(turn))
}

func (s *Server) handleResolveInvite(w http.ResponseWriter, r *http.Request) {
	tok, err := invite.ParseVanityOrCode(chi.URLParam(r, "token"))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Field: "token"})
		return
	}
	rec, err := s.interviewer.ResolvePlan(r.Context(), tok.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"planId":   rec.ID,
		"token":    tok,
		"shareUrl": tok.ShareURL(s.baseURL),
	})
}

package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"formate/pkg/flow"
	"formate/pkg/schema"
)

// Locker guards a data directory against concurrent CLI sessions.
type Locker interface {
	Acquire() error
	Release() error
}

// CLI commands a respondent can type instead of an answer.
const (
	CommandQuit = "/quit"
	CommandSkip = "/skip"
	CommandEnd  = "/end"
)

// CLISession manages an interactive interview in the terminal.
type CLISession struct {
	State       *SessionState
	Interviewer *Interviewer
	Lock        Locker
	In          io.Reader
	Out         io.Writer
}

// NewCLISession creates a new CLI session.
func NewCLISession(interviewer *Interviewer, lock Locker, in io.Reader, out io.Writer) *CLISession {
	return &CLISession{
		State:       NewSessionState(),
		Interviewer: interviewer,
		Lock:        lock,
		In:          in,
		Out:         out,
	}
}

// Run interviews the respondent on the plan named by ref (plan ID, invite
// code, vanity slug or share URL) until the conversation ends or the input
// is exhausted.
func (s *CLISession) Run(ctx context.Context, ref string) error {
	if s.Lock != nil {
		if err := s.Lock.Acquire(); err != nil {
			return fmt.Errorf("failed to acquire lock: %w", err)
		}
		defer func() {
			if err := s.Lock.Release(); err != nil {
				fmt.Fprintf(s.Out, "Failed to release lock: %v\n", err)
			}
		}()
	}

	rec, err := s.Interviewer.ResolvePlan(ctx, ref)
	if err != nil {
		return fmt.Errorf("resolve plan: %w", err)
	}

	turn, err := s.Interviewer.Start(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("start interview: %w", err)
	}
	s.State.Advance(turn)

	if rec.Plan.Intro != "" {
		s.say(rec.Plan.Intro)
	}

	reader := bufio.NewReader(s.In)
	for !s.State.Done {
		field := turn.Field
		s.ask(field, turn.Asked+1)

		line, readErr := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if readErr != nil && line == "" {
			if errors.Is(readErr, io.EOF) {
				fmt.Fprintln(s.Out, "\nInput closed; the conversation stays open.")
				return nil
			}
			return fmt.Errorf("read answer: %w", readErr)
		}
		s.State.AddMessage("user", line)

		switch strings.ToLower(line) {
		case CommandQuit:
			fmt.Fprintf(s.Out, "Paused. Conversation %s stays open.\n", s.State.ConversationID)
			return nil
		case CommandEnd:
			next, err := s.Interviewer.End(ctx, s.State.ConversationID, schema.EndReasonEnoughInfo)
			if err != nil {
				var pe *PolicyError
				if errors.As(err, &pe) {
					fmt.Fprintln(s.Out, "This form cannot be ended early.")
					continue
				}
				return fmt.Errorf("end interview: %w", err)
			}
			turn = next
			s.State.Advance(turn)
			continue
		}

		var raw any
		if !strings.EqualFold(line, CommandSkip) {
			raw = ParseInput(field, line)
		}

		next, err := s.Interviewer.Answer(ctx, s.State.ConversationID, field.ID, raw)
		if err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				fmt.Fprintf(s.Out, "  %s\n", ve.Message)
				continue
			}
			return fmt.Errorf("record answer: %w", err)
		}
		turn = next
		s.State.Advance(turn)
	}

	if rec.Plan.Outro != "" {
		s.say(rec.Plan.Outro)
	}
	fmt.Fprintf(s.Out, "\nDone (%s). Conversation %s\n", endLabel(s.State.Current.Reason), s.State.ConversationID)
	return nil
}

func (s *CLISession) say(text string) {
	s.State.AddMessage("assistant", text)
	fmt.Fprintf(s.Out, "\n%s\n", text)
}

// ask prints a question with its options and hints.
func (s *CLISession) ask(f *schema.FormField, n int) {
	s.State.AddMessage("assistant", f.Label)

	fmt.Fprintf(s.Out, "\n%d. %s", n, f.Label)
	if !f.Required {
		fmt.Fprint(s.Out, " (optional, /skip)")
	}
	fmt.Fprintln(s.Out)
	if f.HelpText != "" {
		fmt.Fprintf(s.Out, "   %s\n", f.HelpText)
	}

	switch {
	case f.Type.IsChoice():
		for i, o := range f.Options {
			fmt.Fprintf(s.Out, "   [%d] %s\n", i+1, o.Label)
		}
		if f.Type.IsMulti() {
			fmt.Fprintln(s.Out, "   Pick any, separated by commas.")
		}
	case f.Type == schema.FieldRating:
		fmt.Fprintf(s.Out, "   1-%d\n", schema.RatingLevels(f.Validation))
	case f.Type == schema.FieldBoolean:
		fmt.Fprintln(s.Out, "   yes/no")
	case f.Type == schema.FieldDate:
		fmt.Fprintf(s.Out, "   %s\n", schema.DateLayout)
	}
	fmt.Fprint(s.Out, "> ")
}

// ParseInput converts a typed line into the raw answer for f. Choice fields
// accept option ids, labels or 1-based numbers.
func ParseInput(f *schema.FormField, line string) any {
	switch {
	case f.Type.IsChoice():
		if !f.Type.IsMulti() {
			return optionID(f, line)
		}
		parts := strings.Split(line, ",")
		ids := make([]any, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				ids = append(ids, optionID(f, p))
			}
		}
		return ids
	case f.Type == schema.FieldNumber || f.Type == schema.FieldRating:
		if n, err := strconv.ParseFloat(line, 64); err == nil {
			return n
		}
	case f.Type == schema.FieldBoolean:
		switch strings.ToLower(line) {
		case "y", "yes", "true":
			return true
		case "n", "no", "false":
			return false
		}
	}
	return line
}

func optionID(f *schema.FormField, s string) string {
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= len(f.Options) {
		return f.Options[n-1].ID
	}
	for _, o := range f.Options {
		if strings.EqualFold(o.ID, s) || strings.EqualFold(o.Label, s) {
			return o.ID
		}
	}
	return s
}

func endLabel(r flow.Reason) string {
	switch r {
	case flow.ReasonHardLimit:
		return "question limit reached"
	case flow.ReasonBranchEnd:
		return "no more questions apply"
	case flow.ReasonPlanExhausted:
		return "all questions answered"
	default:
		return string(r)
	}
}

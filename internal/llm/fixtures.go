package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FixturesDir is where recorded model interactions live, relative to the
// llm package.
const FixturesDir = "testdata/fixtures"

// Fixture represents a recorded LLM interaction for testing.
type Fixture struct {
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	Output    json.RawMessage `json:"output"`
	Model     string          `json:"model"`
	Timestamp time.Time       `json:"timestamp"`
}

// UnmarshalInput unmarshals the fixture input into the specified type.
func (f *Fixture) UnmarshalInput(v interface{}) error {
	return json.Unmarshal(f.Input, v)
}

// UnmarshalOutput unmarshals the fixture output into the specified type.
func (f *Fixture) UnmarshalOutput(v interface{}) error {
	return json.Unmarshal(f.Output, v)
}

func (f *Fixture) check() error {
	if f.Name == "" {
		return fmt.Errorf("missing 'name' field")
	}
	if f.Model == "" {
		return fmt.Errorf("missing 'model' field")
	}
	if len(f.Input) == 0 {
		return fmt.Errorf("missing 'input' field")
	}
	if len(f.Output) == 0 {
		return fmt.Errorf("missing 'output' field")
	}
	return nil
}

// LoadFixture loads a fixture from dir.
func LoadFixture(dir, name string) (*Fixture, error) {
	data, err := os.ReadFile(filepath.Join(dir, name+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("fixture not found: %s", name)
		}
		return nil, fmt.Errorf("read fixture %s: %w", name, err)
	}

	var fixture Fixture
	if err := json.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("parse fixture %s (invalid JSON): %w", name, err)
	}
	if err := fixture.check(); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", name, err)
	}

	return &fixture, nil
}

// SaveFixture writes a fixture to dir.
func SaveFixture(dir string, fixture *Fixture) error {
	if err := fixture.check(); err != nil {
		return fmt.Errorf("fixture %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create fixtures directory: %w", err)
	}

	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}

	// Write to temp, then rename
	fixturePath := filepath.Join(dir, fixture.Name+".json")
	tempPath := fixturePath + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write temp fixture %s: %w", fixture.Name, err)
	}

	if err := os.Rename(tempPath, fixturePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("rename fixture %s: %w", fixture.Name, err)
	}

	return nil
}

// FixtureCompleter replays the output of a recorded fixture as the reply.
func FixtureCompleter(f *Fixture) *MockCompleter {
	return NewMockCompleter(string(f.Output))
}

// Recorder wraps a Completer and saves the last JSON reply it passed through
// as a fixture. Replies that are not JSON are passed on but not recorded.
type Recorder struct {
	Next  Completer
	Dir   string
	Name  string
	Input any // task input stored alongside the reply

	mu    sync.Mutex
	saved int
	now   func() time.Time
}

// NewRecorder creates a Recorder writing <dir>/<name>.json.
func NewRecorder(next Completer, dir, name string, input any) *Recorder {
	return &Recorder{Next: next, Dir: dir, Name: name, Input: input, now: time.Now}
}

// Complete implements Completer.
func (r *Recorder) Complete(ctx context.Context, model string, messages []Message) (string, error) {
	reply, err := r.Next.Complete(ctx, model, messages)
	if err != nil {
		return "", err
	}

	out := []byte(cleanMarkdownCodeBlocks(reply))
	if !json.Valid(out) {
		return reply, nil
	}
	in, err := json.Marshal(r.Input)
	if err != nil {
		return "", fmt.Errorf("marshal fixture input: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := SaveFixture(r.Dir, &Fixture{
		Name:      r.Name,
		Input:     in,
		Output:    out,
		Model:     model,
		Timestamp: r.now().UTC().Truncate(time.Second),
	}); err != nil {
		return "", err
	}
	r.saved++
	return reply, nil
}

// Saved returns how many replies were written.
func (r *Recorder) Saved() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved
}

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// GenkitProvider prefixes the models registered by RegisterGenkitModels.
const GenkitProvider = "openrouter"

// RegisterGenkitModels initializes Genkit and defines one model per name,
// each backed by the client's completions.
func RegisterGenkitModels(ctx context.Context, client *Client, models ...string) (*genkit.Genkit, error) {
	if len(models) == 0 {
		models = []string{client.DefaultModel()}
	}

	g := genkit.Init(ctx)

	for _, name := range models {
		model := name
		label := model
		if cfg, ok := client.Model(model); ok {
			label = cfg.Description
		}
		genkit.DefineModel(
			g,
			GenkitModelName(model),
			&ai.ModelOptions{
				Label: label + " (via OpenRouter)",
				Supports: &ai.ModelSupports{
					Multiturn:  true,
					SystemRole: true,
				},
			},
			func(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
				text, err := client.Complete(ctx, model, toMessages(req.Messages))
				if err != nil {
					return nil, err
				}
				return &ai.ModelResponse{
					Request: req,
					Message: &ai.Message{
						Role:    ai.RoleModel,
						Content: []*ai.Part{ai.NewTextPart(text)},
					},
				}, nil
			},
		)
	}

	return g, nil
}

// GenkitModelName returns the registry name of an OpenRouter model.
func GenkitModelName(model string) string {
	return GenkitProvider + "/" + model
}

// GenkitCompleter routes completions through models registered in Genkit.
type GenkitCompleter struct {
	G *genkit.Genkit
}

// Complete implements Completer.
func (c *GenkitCompleter) Complete(ctx context.Context, model string, messages []Message) (string, error) {
	m := genkit.LookupModel(c.G, GenkitModelName(model))
	if m == nil {
		return "", NewAPIError(0, fmt.Sprintf("model %s is not registered with genkit", model))
	}

	req := &ai.ModelRequest{Messages: make([]*ai.Message, 0, len(messages))}
	for _, msg := range messages {
		req.Messages = append(req.Messages, &ai.Message{
			Role:    toRole(msg.Role),
			Content: []*ai.Part{ai.NewTextPart(msg.Content)},
		})
	}

	resp, err := m.Generate(ctx, req, nil)
	if err != nil {
		return "", fmt.Errorf("genkit generate: %w", err)
	}
	if resp == nil || resp.Message == nil {
		return "", NewAPIError(0, "empty genkit response")
	}
	return partsText(resp.Message.Content), nil
}

func toMessages(msgs []*ai.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		switch m.Role {
		case ai.RoleSystem:
			role = "system"
		case ai.RoleModel:
			role = "assistant"
		}
		out = append(out, Message{Role: role, Content: partsText(m.Content)})
	}
	return out
}

func toRole(role string) ai.Role {
	switch role {
	case "system":
		return ai.RoleSystem
	case "assistant":
		return ai.RoleModel
	default:
		return ai.RoleUser
	}
}

func partsText(parts []*ai.Part) string {
	var sb strings.Builder
	for _, p := range parts {
		if p != nil && p.IsText() {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"formate/internal/core"
	"formate/internal/llm"
	"formate/internal/repository"
	"formate/pkg/schema"
)

// rootOptions are the persistent flags shared by every command. Empty
// values fall back to the environment configuration.
type rootOptions struct {
	dataDir  string
	logLevel string
	envFile  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "formate",
		Short:        "Conversational survey plans",
		Long:         `formate validates survey plans, evaluates their branching, drafts plans with a model and runs interviews in the terminal or over HTTP.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "data directory (default $FORMATE_DATA_DIR or .formate)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (default $LOG_LEVEL)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file read before the environment")

	cmd.AddCommand(
		newValidateCmd(),
		newNextCmd(),
		newCreateCmd(opts),
		newGenerateCmd(opts),
		newInterviewCmd(opts),
		newServeCmd(opts),
		newInviteCmd(opts),
	)
	return cmd
}

// env is the configuration and logger a command runs with.
type env struct {
	cfg    *core.Config
	logger core.Logger
}

func (o *rootOptions) load() (*env, error) {
	cfg, err := core.LoadConfigFrom(o.envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return &env{cfg: cfg, logger: core.NewLogger(cfg.LogLevel)}, nil
}

func (e *env) repository() *repository.Repository {
	return repository.NewRepository(e.cfg.DataDir, e.logger.With("component", "repository"))
}

// llmClient builds a model client. With useGenkit the completions are routed
// through models registered in a Genkit registry.
func (e *env) llmClient(ctx context.Context, model string, useGenkit bool) (*llm.Client, error) {
	if model == "" {
		model = e.cfg.DefaultModel
	}
	cfg := &llm.Config{
		APIKey:        e.cfg.OpenRouterAPIKey,
		DefaultModel:  model,
		EndCheckModel: e.cfg.EndCheckModel,
		Referer:       e.cfg.BaseURL,
	}
	client, err := llm.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("OPENROUTER_API_KEY is required for model calls: %w", err)
	}
	if !useGenkit {
		return client, nil
	}

	models := []string{model}
	if m := client.EndCheckModel(); m != model {
		models = append(models, m)
	}
	g, err := llm.RegisterGenkitModels(ctx, client, models...)
	if err != nil {
		return nil, fmt.Errorf("register genkit models: %w", err)
	}
	e.logger.Debug("routing completions through genkit", "model", llm.GenkitModelName(model))
	return llm.NewClientWithCompleter(&llm.Config{
		APIKey:        cfg.APIKey,
		DefaultModel:  model,
		EndCheckModel: cfg.EndCheckModel,
	}, &llm.GenkitCompleter{G: g}), nil
}

// optionalGenerator returns a generator when an API key is configured, and
// nil otherwise. Interviews run without early-end checks in that case.
func (e *env) optionalGenerator(ctx context.Context) core.PlanGenerator {
	if e.cfg.OpenRouterAPIKey == "" {
		return nil
	}
	client, err := e.llmClient(ctx, "", false)
	if err != nil {
		e.logger.Warn("model unavailable", "error", err.Error())
		return nil
	}
	return core.NewRealPlanGenerator(client)
}

// readPlanFile decodes a YAML or JSON plan file and validates it.
func readPlanFile(path string) (*schema.FormPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return schema.DecodePlanYAML(data)
}

package main

import (
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"formate/internal/core"
	"formate/internal/llm/tasks"
)

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	var (
		seed      string
		maxQs     int
		model     string
		useGenkit bool
		save      bool
		vanity    string
	)

	cmd := &cobra.Command{
		Use:   "generate <description>",
		Short: "Draft a plan from a description with a model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load()
			if err != nil {
				return err
			}
			client, err := e.llmClient(cmd.Context(), model, useGenkit)
			if err != nil {
				return err
			}

			input := &tasks.PlanGenInput{
				Description:  strings.Join(args, " "),
				Seed:         seed,
				MaxQuestions: maxQs,
			}
			gen := core.NewRealPlanGenerator(client)

			if save {
				repo := e.repository()
				iv := core.NewInterviewer(repo, repo, gen, e.logger)
				rec, err := iv.DraftPlan(cmd.Context(), input, vanity)
				if err != nil {
					return err
				}
				printPlanRecord(cmd, rec, e.cfg.BaseURL)
				return nil
			}

			plan, err := gen.GeneratePlan(cmd.Context(), input)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(plan)
		},
	}

	cmd.Flags().StringVar(&seed, "seed", "", "first question to ask")
	cmd.Flags().IntVar(&maxQs, "max", 0, "upper bound on the number of questions")
	cmd.Flags().StringVar(&model, "model", "", "model name (default $DEFAULT_MODEL)")
	cmd.Flags().BoolVar(&useGenkit, "genkit", false, "route completions through a Genkit model registry")
	cmd.Flags().BoolVar(&save, "save", false, "store the drafted plan in the data directory")
	cmd.Flags().StringVar(&vanity, "vanity", "", "vanity slug when saving")
	return cmd
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"formate/internal/core"
	"formate/pkg/flow"
	"formate/pkg/invite"
	"formate/pkg/schema"
)

func newValidateCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "validate <plan-file>",
		Short: "Validate a YAML or JSON plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := readPlanFile(args[0])
			if err != nil {
				var ve *schema.ValidationError
				if errors.As(err, &ve) {
					fmt.Fprintf(cmd.OutOrStdout(), "invalid: %s: %s (%s)\n", ve.Path, ve.Constraint, ve.Kind)
				}
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(plan)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d fields, %d branch rules, at most %d questions\n",
				len(plan.Fields), len(plan.Branching), plan.Stopping.HardLimit.MaxQuestions)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the normalized plan as JSON")
	return cmd
}

func newNextCmd() *cobra.Command {
	var planPath, answersPath, after string

	cmd := &cobra.Command{
		Use:   "next",
		Short: "Print the step that follows an answer",
		Long: `Evaluates the plan's stopping policy and branch rules against a set of
answers. The answers file maps field ids to values, or lists
{"fieldId", "answer"} entries in asking order. Without --after the
first question is printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := readPlanFile(planPath)
			if err != nil {
				return err
			}

			answers := schema.NewAnswerSet()
			if answersPath != "" {
				if answers, err = readAnswersFile(answersPath); err != nil {
					return err
				}
			}

			var step flow.NextStep
			if after == "" {
				step = flow.First(plan)
			} else {
				if _, ok := plan.Field(after); !ok {
					return fmt.Errorf("field %q is not part of the plan", after)
				}
				step = flow.Decide(plan, answers, after)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(step)
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "plan file")
	cmd.Flags().StringVar(&answersPath, "answers", "", "answers file (YAML or JSON)")
	cmd.Flags().StringVar(&after, "after", "", "id of the field just answered")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

// readAnswersFile accepts a list of {fieldId, answer} entries or a map of
// field id to value. Map entries are taken in key order.
func readAnswersFile(path string) (*schema.AnswerSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read answers: %w", err)
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse answers: %w", err)
	}

	set := schema.NewAnswerSet()
	switch v := raw.(type) {
	case nil:
	case []any:
		for i, item := range v {
			entry, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("answers[%d] must be an object", i)
			}
			id, _ := entry["fieldId"].(string)
			if id == "" {
				return nil, fmt.Errorf("answers[%d].fieldId is required", i)
			}
			a, err := schema.ParseStoredAnswer(entry["answer"])
			if err != nil {
				return nil, fmt.Errorf("answers[%d]: %w", i, err)
			}
			set.Put(id, a)
		}
	case map[string]any:
		ids := make([]string, 0, len(v))
		for id := range v {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			a, err := schema.ParseStoredAnswer(v[id])
			if err != nil {
				return nil, fmt.Errorf("answers.%s: %w", id, err)
			}
			set.Put(id, a)
		}
	default:
		return nil, fmt.Errorf("answers must be a list or a map")
	}
	return set, nil
}

func newCreateCmd(opts *rootOptions) *cobra.Command {
	var vanity string

	cmd := &cobra.Command{
		Use:   "create <plan-file>",
		Short: "Validate a plan and store it in the data directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load()
			if err != nil {
				return err
			}
			plan, err := readPlanFile(args[0])
			if err != nil {
				return err
			}
			planMap, err := plan.ToMap()
			if err != nil {
				return err
			}

			repo := e.repository()
			iv := core.NewInterviewer(repo, repo, nil, e.logger)
			rec, err := iv.CreatePlan(cmd.Context(), planMap, vanity)
			if err != nil {
				return err
			}
			printPlanRecord(cmd, rec, e.cfg.BaseURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&vanity, "vanity", "", "optional vanity slug for the share link")
	return cmd
}

func printPlanRecord(cmd *cobra.Command, rec *core.PlanRecord, baseURL string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "plan:   %s\n", rec.ID)
	fmt.Fprintf(out, "invite: %s\n", rec.InviteCode)
	share := invite.Token{Kind: invite.KindCode, Value: rec.InviteCode}
	if rec.Vanity != "" {
		fmt.Fprintf(out, "vanity: %s\n", rec.Vanity)
		share = invite.Token{Kind: invite.KindVanity, Value: rec.Vanity}
	}
	fmt.Fprintf(out, "share:  %s\n", share.ShareURL(baseURL))
}

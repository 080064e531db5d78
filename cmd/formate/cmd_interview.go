package main

import (
	"github.com/spf13/cobra"

	"formate/internal/core"
	"formate/internal/repository"
)

func newInterviewCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "interview <plan-id|invite|share-url>",
		Short: "Answer a stored plan in the terminal",
		Long: `Starts a conversation on a stored plan and asks its questions one by one.
Type /skip to skip an optional question, /end to finish early when the
plan allows it and /quit to pause. The data directory is locked while
the interview runs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load()
			if err != nil {
				return err
			}

			repo := e.repository()
			lock := repository.NewFileLock(repository.LockPath(e.cfg.DataDir), "cli", e.logger)
			iv := core.NewInterviewer(repo, repo, e.optionalGenerator(cmd.Context()), e.logger)

			session := core.NewCLISession(iv, lock, cmd.InOrStdin(), cmd.OutOrStdout())
			return session.Run(cmd.Context(), args[0])
		},
	}
}

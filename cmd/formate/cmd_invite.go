package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"formate/pkg/invite"
)

func newInviteCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Work with invite codes and share links",
	}

	newCode := &cobra.Command{
		Use:   "new",
		Short: "Generate a fresh invite code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load()
			if err != nil {
				return err
			}
			tok, err := invite.GenerateShortCode()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", tok.Value, tok.ShareURL(e.cfg.BaseURL))
			return nil
		},
	}

	parse := &cobra.Command{
		Use:   "parse <code|vanity|url|text>",
		Short: "Extract the invite token from a code, slug, link or message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			tok, err := invite.ParseVanityOrCode(text)
			if err != nil {
				var ok bool
				if tok, ok = invite.ExtractToken(text); !ok {
					return fmt.Errorf("no invite token in %q", text)
				}
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(tok)
		},
	}

	cmd.AddCommand(newCode, parse)
	return cmd
}

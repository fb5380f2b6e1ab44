package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"recipelens/pkg/auth"
)

func newTokenCmd(a *app) *cobra.Command {
	var subject, scope string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the API",
		Example: `  recipectl token --subject kitchen-tablet
  curl -H "Authorization: Bearer $(recipectl token --subject ci -q)" ...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not set")
			}
			quiet, _ := cmd.Flags().GetBool("quiet")
			tok, exp, err := auth.NewVerifier(a.cfg.Auth).IssueToken(subject, scope, time.Now())
			if err != nil {
				return err
			}
			if quiet {
				fmt.Fprintln(cmd.OutOrStdout(), tok)
				return nil
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"token":      tok,
				"subject":    subject,
				"expires_at": exp.UTC(),
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Who the token is issued to")
	cmd.Flags().StringVar(&scope, "scope", "api", "Token scope")
	cmd.Flags().BoolP("quiet", "q", false, "Print only the token")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key KEY",
		Short: "Hash an API key for RECIPELENS_AUTH_API_KEY_HASH",
		Long: `Prints the bcrypt hash of KEY. Configure the hash instead of the plain key
so the server never stores the secret itself.`,
		Args: cobra.ExactArgs(1),
		// no config needed
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := auth.HashAPIKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}

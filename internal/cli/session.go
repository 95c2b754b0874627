package cli

import (
	"io"

	"github.com/pysugar/homeauth/internal/domain"
	"github.com/spf13/cobra"
)

// NewResumeCommand creates the resume command.
func NewResumeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Show the session restored from the local cache",
		Long:  "Restores the active session from the local cache without contacting Google or the directory.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), rootOpts.ConfigPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			acct := app.Engine.State().Current()
			p := newPrinter(rootOpts, cmd.OutOrStdout())
			return p.emit(struct {
				SignedIn bool            `json:"signed_in"`
				Account  *domain.Account `json:"account,omitempty"`
			}{acct != nil, acct}, func(w io.Writer) {
				if acct == nil {
					p.line("Not signed in.")
					return
				}
				p.line("Signed in as %s <%s>", acct.DisplayName, acct.Email)
			})
		},
	}
}

// NewSignOutCommand creates the signout command.
func NewSignOutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign out and forget every cached account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), rootOpts.ConfigPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Engine.SignOut(cmd.Context()); err != nil {
				return err
			}
			p := newPrinter(rootOpts, cmd.OutOrStdout())
			return p.emit(map[string]string{"status": "signed_out"}, func(w io.Writer) {
				p.line("Signed out.")
			})
		},
	}
}

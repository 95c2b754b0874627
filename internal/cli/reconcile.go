package cli

import (
	"errors"
	"io"

	"github.com/pysugar/homeauth/internal/domain"
	"github.com/pysugar/homeauth/internal/session"
	"github.com/spf13/cobra"
)

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in with Google to an existing account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(rootOpts, cmd, domain.IntentLogin)
		},
	}
}

// NewSignupCommand creates the signup command.
func NewSignupCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Create an account by signing in with Google",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(rootOpts, cmd, domain.IntentSignup)
		},
	}
}

func runReconcile(opts *RootOptions, cmd *cobra.Command, intent domain.Intent) error {
	app, err := NewApp(cmd.Context(), opts.ConfigPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Close()

	confirmer := NewTerminalConfirmer(cmd.InOrStdin(), cmd.ErrOrStderr())
	out, err := app.Engine.Reconcile(cmd.Context(), intent, confirmer)
	return printOutcome(newPrinter(opts, cmd.OutOrStdout()), out, err)
}

type outcomeView struct {
	Status  string          `json:"status"`
	Account *domain.Account `json:"account,omitempty"`
	Warning string          `json:"warning,omitempty"`
}

// printOutcome reports a reconciliation. Cancel and decline print a status
// and exit cleanly; failures return one user-facing message.
func printOutcome(p printer, out session.Outcome, err error) error {
	switch {
	case err == nil:
		view := outcomeView{Status: session.OutcomeSignedIn, Account: out.Account}
		if out.CacheErr != nil {
			view.Warning = domain.UserMessage(out.CacheErr)
		}
		return p.emit(view, func(w io.Writer) {
			p.line("Signed in as %s <%s>", out.Account.DisplayName, out.Account.Email)
			if view.Warning != "" {
				p.line("Warning: %s", view.Warning)
			}
		})
	case errors.Is(err, domain.ErrUserCancelled):
		return p.emit(outcomeView{Status: session.OutcomeCancelled}, func(w io.Writer) {
			p.line("Sign-in cancelled.")
		})
	case errors.Is(err, domain.ErrDeclined):
		return p.emit(outcomeView{Status: session.OutcomeDeclined}, func(w io.Writer) {
			p.line("Nothing changed.")
		})
	default:
		return errors.New(domain.UserMessage(err))
	}
}

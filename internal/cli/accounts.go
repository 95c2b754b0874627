package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/pysugar/homeauth/internal/db"
	"github.com/pysugar/homeauth/internal/domain"
	"github.com/spf13/cobra"
)

// NewAccountsCommand creates the accounts command group.
func NewAccountsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List, switch and forget cached accounts",
	}
	cmd.AddCommand(newAccountsListCommand(rootOpts))
	cmd.AddCommand(newAccountsSwitchCommand(rootOpts))
	cmd.AddCommand(newAccountsRemoveCommand(rootOpts))
	return cmd
}

type localAccountView struct {
	Account   domain.Account `json:"account"`
	LastLogin string         `json:"last_login"`
	IsActive  bool           `json:"is_active"`
}

func newAccountsListCommand(rootOpts *RootOptions) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached accounts, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), rootOpts.ConfigPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()
			p := newPrinter(rootOpts, cmd.OutOrStdout())

			if remote {
				accounts, err := app.Directory.List(cmd.Context())
				if err != nil {
					return errors.New(domain.UserMessage(err))
				}
				return p.emit(accounts, func(w io.Writer) {
					for _, a := range accounts {
						p.line("%s  %-24s %s  %v", a.ID, a.DisplayName, a.Email, a.AuthMethods)
					}
				})
			}

			rows, err := app.Cache.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			views := make([]localAccountView, 0, len(rows))
			for _, row := range rows {
				acct, err := db.DecodeAccount(row)
				if err != nil {
					app.Logger.Warn("skipping corrupt cached account", "operation", "list_local", "account_id", row.ID, "error", err)
					continue
				}
				views = append(views, localAccountView{Account: acct, LastLogin: row.LastLogin, IsActive: row.IsActive})
			}
			return p.emit(views, func(w io.Writer) {
				if len(views) == 0 {
					p.line("No cached accounts.")
					return
				}
				for _, v := range views {
					marker := " "
					if v.IsActive {
						marker = "*"
					}
					p.line("%s %s  %-24s %s  last login %s", marker, v.Account.ID, v.Account.DisplayName, v.Account.Email, v.LastLogin)
				}
			})
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "list the account directory instead of the local cache")
	return cmd
}

func newAccountsSwitchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "switch <account-id>",
		Short: "Make a cached account the active session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), rootOpts.ConfigPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Cache.SetActive(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return fmt.Errorf("no cached account %q", args[0])
				}
				return err
			}
			acct := app.Engine.Resume(cmd.Context())
			if acct == nil {
				return errors.New(domain.UserMessage(domain.ErrDeserializationFailed))
			}

			p := newPrinter(rootOpts, cmd.OutOrStdout())
			return p.emit(acct, func(w io.Writer) {
				p.line("Switched to %s <%s>", acct.DisplayName, acct.Email)
			})
		},
	}
}

func newAccountsRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <account-id>",
		Short: "Forget a cached account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), rootOpts.ConfigPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Cache.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			p := newPrinter(rootOpts, cmd.OutOrStdout())
			return p.emit(map[string]string{"status": "removed", "id": args[0]}, func(w io.Writer) {
				p.line("Removed %s.", args[0])
			})
		},
	}
}

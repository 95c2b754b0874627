package cli

import (
	"io"

	"github.com/pysugar/homeauth/internal/api/handlers"
	"github.com/pysugar/homeauth/internal/config"
	"github.com/pysugar/homeauth/internal/db"
	"github.com/spf13/cobra"
)

// NewAPIKeyCommand creates the apikey command. It only touches the local
// cache database.
func NewAPIKeyCommand(rootOpts *RootOptions) *cobra.Command {
	var regenerate, reveal bool

	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Show or rotate the local API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			database, err := db.InitDB(cfg.CachePath)
			if err != nil {
				return err
			}
			defer closeGorm(database)

			key := db.GetAPIKey(database)
			if regenerate {
				if key, err = db.RegenerateAPIKey(database); err != nil {
					return err
				}
				reveal = true
			}
			if !reveal {
				key = handlers.MaskAPIKey(key)
			}

			p := newPrinter(rootOpts, cmd.OutOrStdout())
			return p.emit(map[string]interface{}{"api_key": key, "masked": !reveal}, func(w io.Writer) {
				p.line("%s", key)
			})
		},
	}

	cmd.Flags().BoolVar(&regenerate, "regenerate", false, "rotate the key and print the new one")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "print the key unmasked")
	return cmd
}

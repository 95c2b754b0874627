package cli

import (
	"io"

	"github.com/spf13/cobra"
)

// NewDeviceCommand creates the device command.
func NewDeviceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "device",
		Short: "Show the device metadata attached to new accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), rootOpts.ConfigPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			info := app.Engine.DeviceInfo(cmd.Context())
			p := newPrinter(rootOpts, cmd.OutOrStdout())
			return p.emit(info, func(w io.Writer) {
				if info.IsZero() {
					p.line("Device metadata unavailable.")
					return
				}
				p.line("Device ID:  %s", info.DeviceID)
				p.line("Hardware:   %s %s", info.Brand, info.Model)
				p.line("OS:         %s %s", info.OSName, info.OSVersion)
				p.line("App:        %s", info.AppVersion)
				p.line("Emulator:   %t", info.IsEmulator)
				if info.IPAddress != "" {
					p.line("Public IP:  %s", info.IPAddress)
				}
				if info.Location != nil && info.Location.Address != "" {
					p.line("Location:   %s", info.Location.Address)
				}
			})
		},
	}
}

package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root scrollreel command.
func NewRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "scrollreel",
		Short: "Record auto-scrolling videos of web pages",
		Long: `scrollreel opens a page in Chromium, clears cookie banners, and records the
page while it scrolls. Finished videos are uploaded to S3 or served locally.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// a missing .env is fine, the environment is used as is
			_ = godotenv.Load()
		},
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (defaults to $CONFIG_FILE)")

	root.AddCommand(
		newServeCmd(&configFile),
		newCaptureCmd(&configFile),
	)

	return root
}

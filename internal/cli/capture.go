package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shehryarbajwa/scrollreel/pkg/models"
)

func newCaptureCmd(configFile *string) *cobra.Command {
	var (
		req      models.GenerateRequest
		duration float64
	)

	cmd := &cobra.Command{
		Use:   "capture <url>",
		Short: "Record a single page and print the stored video reference",
		Example: `  scrollreel capture https://example.com --speed fast
  scrollreel capture https://example.com --speed slow --direction loop --duration 20 --hide .ad-banner`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.URL = args[0]
			if cmd.Flags().Changed("duration") {
				req.Duration = &duration
			}
			captureReq, err := req.Validate()
			if err != nil {
				return err
			}

			startCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			a, err := newApp(startCtx, *configFile)
			if err != nil {
				return err
			}
			defer a.Close()

			artifact, err := a.manager.Generate(cmd.Context(), captureReq)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"captureId": artifact.CaptureID,
				"videoUrl":  artifact.Reference.URL,
				"key":       artifact.Reference.Key,
				"sizeBytes": artifact.SizeBytes,
				"duration":  fmt.Sprintf("%.1fs", artifact.Duration.Seconds()),
			})
		},
	}

	cmd.Flags().StringVar(&req.ScrollSpeed, "speed", "medium", "scroll speed: fast, medium or slow")
	cmd.Flags().StringVar(&req.Resolution, "resolution", models.DefaultResolution, "viewport as WxH")
	cmd.Flags().StringVar(&req.ScrollDirection, "direction", "down", "scroll direction: down, up or loop")
	cmd.Flags().StringSliceVar(&req.HideElements, "hide", nil, "CSS selectors to hide before recording")
	cmd.Flags().Float64Var(&duration, "duration", 0, "video length in seconds (default: from page height)")

	return cmd
}

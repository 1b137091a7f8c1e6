package cli

import (
	"os/signal"
	"syscall"

	"github.com/aihub/ragbot/internal/ingest"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Ingest files dropped into the upload folder",
	Long: `Watches the configured upload folder. Every file that appears is ingested
into the ingestion table and then removed from the folder.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return invoke(func(w *ingest.Watcher) error {
		return w.Run(ctx)
	})
}

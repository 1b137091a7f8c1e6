package cli

import (
	"os/signal"
	"syscall"

	"github.com/aihub/ragbot/app/router"
	"github.com/aihub/ragbot/internal/agent"
	"github.com/aihub/ragbot/internal/config"
	"github.com/aihub/ragbot/internal/ingest"
	"github.com/aihub/ragbot/internal/logger"
	"github.com/beego/beego/v2/server/web"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the HTTP API: question answering, URL and file ingestion,
document analysis, health and Prometheus metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVarP(&serveWatch, "watch", "w", false, "also ingest files dropped into the upload folder")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return invoke(func(cfg *config.Config, h *agent.BotHandler, a *agent.Agent, chat *agent.ChatAgent, p *ingest.Pipeline, w *ingest.Watcher) error {
		if err := router.Init(router.Deps{
			Handler:     h,
			Agent:       a,
			Chat:        chat,
			Pipeline:    p,
			MaxFileSize: cfg.Ingest.MaxFileSize,
			CORSOrigins: cfg.Server.CORSOrigins,
		}); err != nil {
			return err
		}

		if serveWatch {
			go func() {
				if err := w.Run(ctx); err != nil {
					logger.Error("upload folder watcher stopped", zap.Error(err))
				}
			}()
		}

		web.BConfig.AppName = cfg.App.Name
		web.BConfig.Listen.HTTPPort = cfg.Server.Port
		if cfg.Metrics.Enabled {
			logger.Info("metrics exposed", zap.String("path", "/metrics"))
		}

		logger.Info("🚀 Starting RAG Bot", zap.Int("port", cfg.Server.Port), zap.Bool("ready", h.Ready()))
		web.Run()
		return nil
	})
}

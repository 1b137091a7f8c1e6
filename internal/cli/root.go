package cli

import (
	"errors"

	"github.com/aihub/ragbot/app/bootstrap"
	"github.com/spf13/cobra"
)

var (
	configFile string
	app        *bootstrap.App
)

var rootCmd = &cobra.Command{
	Use:   "ragbot",
	Short: "Retrieval-augmented question answering over ingested documents",
	Long: `ragbot ingests documents and web pages into a local vector store and
answers questions with a retrieval agent that searches the store before replying.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if app != nil {
			return nil
		}
		a, err := bootstrap.Init(configFile)
		if err != nil {
			return err
		}
		app = a
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if app != nil {
			app.Shutdown()
			app = nil
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default: $CONFIG_FILE)")
}

// Execute 运行命令行
func Execute() error {
	return rootCmd.Execute()
}

// invoke 从容器中解析组件并执行
func invoke(function interface{}) error {
	if app == nil {
		return errors.New("application not initialized")
	}
	return app.Invoke(function)
}

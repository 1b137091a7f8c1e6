package cli

import (
	"strings"

	"github.com/aihub/ragbot/internal/agent"
	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the vector store",
	Long: `Runs the retrieval agent once: analyze the question, search the store,
and synthesize an answer from the evidence found.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	return invoke(func(h *agent.BotHandler) {
		cmd.Println(h.HandleQuestion(cmd.Context(), question))
	})
}

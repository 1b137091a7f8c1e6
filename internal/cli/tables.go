package cli

import (
	"github.com/aihub/ragbot/internal/agent"
	"github.com/aihub/ragbot/internal/knowledge"
	"github.com/spf13/cobra"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List vector tables and their row counts",
	Args:  cobra.NoArgs,
	RunE:  runTables,
}

func init() {
	rootCmd.AddCommand(tablesCmd)
}

func runTables(cmd *cobra.Command, _ []string) error {
	return invoke(func(h *agent.BotHandler, store *knowledge.BoltVectorStore) error {
		if store.State() == knowledge.StateDisconnected {
			cmd.Println("Vector store is not available.")
			return nil
		}

		tables, err := store.ListTables()
		if err != nil {
			return err
		}
		if len(tables) == 0 {
			cmd.Println("No tables found.")
			return nil
		}

		view := store.Fork()
		for _, name := range tables {
			rows := -1
			if err := view.SelectTable(name); err == nil {
				rows, _ = view.CountRows()
			}
			marker := " "
			if h.Ready() && name == store.TableName() {
				marker = "*"
			}
			cmd.Printf("%s %-24s %d rows\n", marker, name, rows)
		}
		return nil
	})
}

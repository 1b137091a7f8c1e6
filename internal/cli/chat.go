package cli

import (
	"bufio"
	"strings"

	"github.com/aihub/ragbot/internal/agent"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var chatSession string

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Talk to the assistant without searching the store",
	Long: `Free-form conversation with a software architecture assistant.
With a message argument it answers once; without arguments it reads
messages from stdin line by line and keeps the conversation history.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "session id to continue (default: new session)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	session := chatSession
	if session == "" {
		session = uuid.NewString()
	}

	return invoke(func(chat *agent.ChatAgent) error {
		if len(args) > 0 {
			answer, err := chat.Ask(cmd.Context(), session, strings.Join(args, " "))
			if err != nil {
				return err
			}
			cmd.Println(answer)
			return nil
		}
		return chatLoop(cmd, chat, session)
	})
}

// chatLoop 逐行读取输入，空行跳过，exit 或 EOF 结束
func chatLoop(cmd *cobra.Command, chat *agent.ChatAgent, session string) error {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	cmd.Printf("session %s, type \"exit\" to quit\n", session)
	for {
		cmd.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		answer, err := chat.Ask(cmd.Context(), session, line)
		if err != nil {
			cmd.PrintErrln("error:", err)
			continue
		}
		cmd.Println(answer)
	}
}

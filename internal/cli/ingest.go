package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aihub/ragbot/internal/ingest"
	"github.com/spf13/cobra"
)

var (
	ingestDocName string
	ingestJSON    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest documents into the vector store",
}

var ingestFileCmd = &cobra.Command{
	Use:   "file [path]",
	Short: "Ingest a PDF, DOCX or TXT file",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngestFile,
}

var ingestURLCmd = &cobra.Command{
	Use:   "url [url]",
	Short: "Download a web page and ingest its text",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngestURL,
}

func init() {
	ingestFileCmd.Flags().StringVar(&ingestDocName, "name", "", "document name (default: file name)")
	ingestCmd.PersistentFlags().BoolVar(&ingestJSON, "json", false, "output the result as JSON")
	ingestCmd.AddCommand(ingestFileCmd, ingestURLCmd)
	rootCmd.AddCommand(ingestCmd)
}

func runIngestFile(cmd *cobra.Command, args []string) error {
	return invoke(func(p *ingest.Pipeline) error {
		result, err := p.IngestFile(cmd.Context(), args[0], ingestDocName)
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		return printResult(cmd, result)
	})
}

func runIngestURL(cmd *cobra.Command, args []string) error {
	return invoke(func(p *ingest.Pipeline) error {
		result, err := p.IngestURL(cmd.Context(), args[0])
		var downloadErr *ingest.DownloadError
		if errors.As(err, &downloadErr) {
			return errors.New(downloadErr.Reason)
		}
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		return printResult(cmd, result)
	})
}

func printResult(cmd *cobra.Command, result ingest.Result) error {
	if ingestJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("%s -> %s: %s\n", result.DocName, result.Table, result.Report)
	if result.ArchiveKey != "" {
		cmd.Printf("archived as %s\n", result.ArchiveKey)
	}
	return nil
}

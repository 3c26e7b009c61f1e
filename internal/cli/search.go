package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"docrag/internal/rag"
)

var (
	searchLimit     int
	searchThreshold float32
	searchFilename  string
	searchJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed documents",
	Long: `Embeds the query and returns the most similar stored chunks, best first.
Results below the score threshold are dropped.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum number of results (0 uses the configured default)")
	searchCmd.Flags().Float32Var(&searchThreshold, "threshold", 0, "minimum score (unset uses the configured default)")
	searchCmd.Flags().StringVarP(&searchFilename, "file", "f", "", "only search chunks of this document")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}

	req := rag.QueryRequest{
		Text:     args[0],
		Limit:    searchLimit,
		Filename: searchFilename,
	}
	if cmd.Flags().Changed("threshold") {
		threshold := searchThreshold
		req.ScoreThreshold = &threshold
	}

	resp, err := s.Engine.Query(commandContext(cmd), req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(resp.Results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, r := range resp.Results {
		cmd.Printf("  [%d] %s, chunk %d/%d (%.3f)\n", i+1, r.Filename, r.ChunkIndex+1, r.TotalChunks, r.Score)
		cmd.Printf("      %s\n", r.Snippet)
		cmd.Println()
	}
	return nil
}

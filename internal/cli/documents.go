package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	listLimit  int
	listOffset string
	listJSON   bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored chunks",
	Long:  `Pages through the stored chunks. Pass the printed next offset to --offset for the next page.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [filename]",
	Short: "Delete every chunk of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 50, "maximum number of chunks")
	listCmd.Flags().StringVar(&listOffset, "offset", "", "offset returned by a previous page")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output the page as JSON")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
}

func runList(cmd *cobra.Command, _ []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}

	page, err := s.Ingester.ListDocuments(commandContext(cmd), listLimit, listOffset)
	if err != nil {
		return fmt.Errorf("list failed: %w", err)
	}

	if listJSON {
		data, err := json.MarshalIndent(page, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal page: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(page.Documents) == 0 {
		cmd.Println("No documents found.")
		return nil
	}
	for _, d := range page.Documents {
		cmd.Printf("  %s [%d/%d] %s\n", d.Filename, d.ChunkIndex+1, d.TotalChunks, d.PointID)
		cmd.Printf("      %s\n", d.Preview)
	}
	if page.HasMore {
		cmd.Printf("\nNext offset: %s\n", page.NextOffset)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	filename := args[0]

	deleted, err := s.Ingester.DeleteDocument(commandContext(cmd), filename)
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	if deleted == 0 {
		return fmt.Errorf("document %q not found", filename)
	}
	cmd.Printf("Deleted %d chunk(s) of %s\n", deleted, filename)
	return nil
}

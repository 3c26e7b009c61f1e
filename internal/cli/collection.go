package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show collection status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the collection if it does not exist",
	Long:  `Creates the configured collection with the configured vector size and distance. Running it again is harmless.`,
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Manage vector store collections",
}

var collectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all collections in the vector store",
	Args:  cobra.NoArgs,
	RunE:  runCollectionList,
}

var collectionDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a collection and every chunk stored in it",
	Long:  `Drops the named collection. Deleting the configured collection is allowed; the next ingest or init recreates it empty.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionDelete,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output status as JSON")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(initCmd)

	collectionCmd.AddCommand(collectionListCmd)
	collectionCmd.AddCommand(collectionDeleteCmd)
	rootCmd.AddCommand(collectionCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}

	info := s.VectorStore.GetCollectionInfo(commandContext(cmd), s.Collection)

	if statusJSON {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("Collection: %s\n", info.Name)
	if !info.Available {
		cmd.Printf("Available:  no (%s)\n", info.Error)
		return nil
	}
	cmd.Println("Available:  yes")
	cmd.Printf("Status:     %s\n", info.Status)
	cmd.Printf("Vectors:    %d x %s\n", info.VectorSize, info.Distance)
	cmd.Printf("Points:     %d\n", info.PointsCount)
	return nil
}

func runInit(cmd *cobra.Command, _ []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}

	if err := s.VectorStore.EnsureCollection(commandContext(cmd), s.Collection, s.Dimension, s.Distance); err != nil {
		return fmt.Errorf("init failed: %w", err)
	}
	cmd.Printf("Collection %s ready (%d dimensions, %s)\n", s.Collection, s.Dimension, s.Distance)
	return nil
}

func runCollectionList(cmd *cobra.Command, _ []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}

	names, err := s.VectorStore.ListCollections(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	if len(names) == 0 {
		cmd.Println("No collections.")
		return nil
	}
	for _, name := range names {
		if name == s.Collection {
			cmd.Printf("%s (configured)\n", name)
			continue
		}
		cmd.Println(name)
	}
	return nil
}

func runCollectionDelete(cmd *cobra.Command, args []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}

	name := args[0]
	if err := s.VectorStore.DeleteCollection(commandContext(cmd), name); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", name, err)
	}
	cmd.Printf("Deleted collection %s\n", name)
	return nil
}

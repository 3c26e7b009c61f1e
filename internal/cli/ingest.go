package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"docrag/internal/indexer"
	"docrag/internal/scanner"
)

var (
	ingestDir  string
	ingestJSON bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Ingest documents into the collection",
	Long: `Extracts, chunks, embeds and stores each file. With --dir every supported file
under the directory is ingested. A file that fails does not stop the others.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestDir, "dir", "d", "", "ingest every supported file under this directory")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output reports as JSON")
	rootCmd.AddCommand(ingestCmd)
}

type ingestTarget struct {
	name string // filename recorded with the chunks
	path string
}

func runIngest(cmd *cobra.Command, args []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	targets := make([]ingestTarget, 0, len(args))
	for _, arg := range args {
		targets = append(targets, ingestTarget{name: filepath.Base(arg), path: arg})
	}
	if ingestDir != "" {
		files, err := scanner.Scan(ctx, ingestDir, s.Filter)
		if err != nil {
			return err
		}
		for _, f := range files {
			targets = append(targets, ingestTarget{name: f.RelPath, path: f.AbsPath})
		}
	}
	if len(targets) == 0 {
		return errors.New("no files to ingest: pass file paths or --dir")
	}

	var (
		reports []*indexer.IngestionReport
		errs    []error
	)
	for _, target := range targets {
		content, err := os.ReadFile(target.path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", target.name, err))
			if !ingestJSON {
				cmd.Printf("  %-40s error: %v\n", target.name, err)
			}
			continue
		}

		report, err := s.Ingester.Ingest(ctx, indexer.Document{
			Filename: target.name,
			Content:  content,
		})
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", target.name, err))
		}
		if !ingestJSON {
			printIngestLine(cmd, target.name, report, err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	if ingestJSON {
		data, err := json.MarshalIndent(reports, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal reports: %w", err)
		}
		cmd.Println(string(data))
	} else {
		cmd.Printf("\n%d file(s), %d failed\n", len(targets), len(errs))
	}

	return errors.Join(errs...)
}

func printIngestLine(cmd *cobra.Command, name string, report *indexer.IngestionReport, err error) {
	switch {
	case report == nil:
		cmd.Printf("  %-40s error: %v\n", name, err)
	case report.Status == indexer.StatusSuccess:
		cmd.Printf("  %-40s %s  %d/%d chunks\n", name, report.Status, report.ChunksSucceeded, report.ChunksTotal)
	default:
		cmd.Printf("  %-40s %s  %d/%d chunks, %d failed\n", name, report.Status, report.ChunksSucceeded, report.ChunksTotal, report.ChunksFailed)
		for _, ce := range report.Errors {
			cmd.Printf("      chunk %d (%s): %s\n", ce.ChunkIndex, ce.Stage, ce.Message)
		}
	}
}

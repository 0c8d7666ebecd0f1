package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driving"
)

var (
	indexKind      string
	indexCategory  string
	indexForce     bool
	indexBatchSize int
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a file or directory",
	Long: `Extracts text from every supported file under path, segments it into
passages and embeds them into the collection selected by --kind.

Unchanged files are skipped using their content fingerprint. A changed file
has its old entries tombstoned before the new ones are written.

Supported formats: .pdf, .docx, .html, .htm, .txt, .md`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

var indexRequirementsCmd = &cobra.Command{
	Use:   "requirements [csv]",
	Short: "Index a requirement list",
	Long: `Loads a requirement CSV with the header category,criterion,description
and embeds one entry per row into the requirement collection.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndexRequirements,
}

func init() {
	indexCmd.Flags().StringVarP(&indexKind, "kind", "k", string(domain.SourceReport), "collection: standard or report")
	indexCmd.Flags().StringVarP(&indexCategory, "category", "c", "", "category tag written to every entry")
	indexCmd.Flags().BoolVarP(&indexForce, "force", "f", false, "re-index files even when unchanged")
	indexCmd.Flags().IntVar(&indexBatchSize, "batch-size", 0, "passages per embedding call (0 = configured)")
	indexCmd.AddCommand(indexRequirementsCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(indexKind)
	if err != nil {
		return err
	}
	if kind == domain.SourceRequirement {
		return errors.New("use 'esgrag index requirements' for requirement lists")
	}
	c, err := collection(kind)
	if err != nil {
		return err
	}
	if c.Indexer == nil {
		return errors.New("indexer not configured")
	}

	if isTerminal(cmd.OutOrStdout()) {
		cmd.Printf("Indexing %s into the %s collection...\n", args[0], kind)
	}

	report, err := c.Indexer.IndexPath(cmd.Context(), args[0], driving.IndexOptions{
		Kind:      kind,
		Category:  indexCategory,
		BatchSize: indexBatchSize,
		Force:     indexForce,
	})
	if report != nil {
		printIndexReport(cmd, report)
	}
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	return nil
}

func runIndexRequirements(cmd *cobra.Command, args []string) error {
	if appConfig == nil || appConfig.Requirements == nil {
		return errors.New("requirement source not configured")
	}
	c, err := collection(domain.SourceRequirement)
	if err != nil {
		return err
	}
	if c.Indexer == nil {
		return errors.New("indexer not configured")
	}

	path, err := absPath(args[0])
	if err != nil {
		return err
	}
	reqs, err := appConfig.Requirements.Load(cmd.Context(), path)
	if err != nil {
		return fmt.Errorf("loading requirements: %w", err)
	}

	report, err := c.Indexer.IndexRequirements(cmd.Context(), path, reqs)
	if report != nil {
		printIndexReport(cmd, report)
	}
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	return nil
}

func printIndexReport(cmd *cobra.Command, r *driving.IndexReport) {
	cmd.Printf("Indexed %d source(s), skipped %d unchanged, %d failed.\n", r.Indexed, r.Skipped, len(r.Failed))
	cmd.Printf("Entries added: %d, tombstoned: %d\n", r.EntriesAdded, r.Tombstoned)
	for _, f := range r.Failed {
		cmd.Printf("  FAILED %s: %s\n", f.Path, f.Error)
	}
	if verbose && r.RunID != "" {
		cmd.Printf("Run: %s\n", r.RunID)
	}
}

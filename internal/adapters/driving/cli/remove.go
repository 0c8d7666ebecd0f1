package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

var removeKind string

var removeCmd = &cobra.Command{
	Use:   "remove [path]",
	Short: "Remove a source from the index",
	Long: `Tombstones every entry of the source and forgets its fingerprint, so the
file is indexed again from scratch next time. Run 'esgrag compact' to
reclaim the space.`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func init() {
	removeCmd.Flags().StringVarP(&removeKind, "kind", "k", string(domain.SourceReport), "collection holding the source")
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(removeKind)
	if err != nil {
		return err
	}
	c, err := collection(kind)
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
	if err := c.Indexer.RemoveSource(cmd.Context(), path); err != nil {
		return fmt.Errorf("remove failed: %w", err)
	}
	cmd.Printf("Removed %s from the %s collection\n", path, kind)
	return nil
}

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

var compactKind string

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Remove tombstoned entries from the indexes",
	Long: `Rebuilds each collection without the entries hidden by re-indexing or
removal. Entry ids change; search results are unaffected.`,
	Args: cobra.NoArgs,
	RunE: runCompact,
}

func init() {
	compactCmd.Flags().StringVarP(&compactKind, "kind", "k", "", "only compact this collection")
	rootCmd.AddCommand(compactCmd)
}

func runCompact(cmd *cobra.Command, _ []string) error {
	kinds := collectionKinds()
	if compactKind != "" {
		kind, err := parseKind(compactKind)
		if err != nil {
			return err
		}
		if _, err := collection(kind); err != nil {
			return err
		}
		kinds = []domain.SourceKind{kind}
	}
	if len(kinds) == 0 {
		return errors.New("no indexes configured")
	}

	for _, kind := range kinds {
		idx := appConfig.Collections[kind].Index
		if idx == nil {
			return fmt.Errorf("%s index not configured", kind)
		}
		before := idx.Stats()
		if before.Total == before.Live {
			cmd.Printf("%s: nothing to compact\n", kind)
			continue
		}
		if err := idx.Compact(cmd.Context()); err != nil {
			return fmt.Errorf("compacting %s: %w", kind, err)
		}
		cmd.Printf("%s: removed %d tombstoned entries\n", kind, before.Total-before.Live)
	}
	return nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics",
	Long:  `Shows entry counts, sources and category coverage for every collection.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

// collectionStatus is the JSON form of one collection's stats.
type collectionStatus struct {
	Kind       domain.SourceKind `json:"kind"`
	Dimension  int               `json:"dimension"`
	Metric     string            `json:"metric"`
	Total      int               `json:"total"`
	Live       int               `json:"live"`
	Sources    int               `json:"sources"`
	Categories map[string]int    `json:"categories,omitempty"`
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output statistics as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	kinds := collectionKinds()
	statuses := make([]collectionStatus, 0, len(kinds))
	for _, kind := range kinds {
		st := appConfig.Collections[kind].Index.Stats()
		statuses = append(statuses, collectionStatus{
			Kind:       kind,
			Dimension:  st.Dimension,
			Metric:     st.Metric,
			Total:      st.Total,
			Live:       st.Live,
			Sources:    st.Sources,
			Categories: st.Categories,
		})
	}

	if statusJSON {
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(statuses) == 0 {
		cmd.Println("No indexes configured.")
		return nil
	}
	for _, s := range statuses {
		cmd.Printf("%s\n", s.Kind)
		cmd.Printf("  Entries:    %d live, %d tombstoned\n", s.Live, s.Total-s.Live)
		cmd.Printf("  Sources:    %d\n", s.Sources)
		cmd.Printf("  Vectors:    %d dimensions, %s\n", s.Dimension, s.Metric)
		if len(s.Categories) > 0 {
			names := make([]string, 0, len(s.Categories))
			for name := range s.Categories {
				names = append(names, name)
			}
			sort.Strings(names)
			cmd.Println("  Categories:")
			for _, name := range names {
				cmd.Printf("    %-20s %d\n", name, s.Categories[name])
			}
		}
		cmd.Println()
	}
	return nil
}

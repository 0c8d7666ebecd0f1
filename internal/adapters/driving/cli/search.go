package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

var (
	searchLimit     int
	searchJSON      bool
	searchKind      string
	searchCategory  string
	searchSource    string
	searchThreshold float64
)

var searchCmd = &cobra.Command{
	Use:   "search [criterion]",
	Short: "Search for passages disclosing a criterion",
	Long: `Embeds the criterion, retrieves the nearest passages and re-ranks them by
combined relevance: vector similarity, keyword overlap and ESG synonyms.

A passage quoting the criterion verbatim always ranks first. Passages below
the category threshold are dropped.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().StringVarP(&searchKind, "kind", "k", string(domain.SourceReport), "collection to search")
	searchCmd.Flags().StringVarP(&searchCategory, "category", "c", "", "requirement category, selects the threshold")
	searchCmd.Flags().StringVarP(&searchSource, "source", "s", "", "restrict results to one document")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", -1, "relevance threshold override in [0,1]")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	criterion := args[0]

	kind, err := parseKind(searchKind)
	if err != nil {
		return err
	}
	c, err := collection(kind)
	if err != nil {
		return err
	}
	if c.Searcher == nil {
		return errors.New("search service not configured")
	}

	opts := domain.SearchOptions{Category: searchCategory}
	if searchSource != "" {
		opts.Filter = &domain.Filter{Source: searchSource}
	}
	if searchThreshold >= 0 {
		if searchThreshold > 1 {
			return fmt.Errorf("%w: threshold must be in [0,1]", domain.ErrInvalidInput)
		}
		t := searchThreshold
		opts.Threshold = &t
	}

	matches, err := c.Searcher.Search(cmd.Context(), criterion, searchLimit, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, domain.NewQueryResult(criterion, matches, nil))
	}

	return outputSearchTable(cmd, matches)
}

func outputSearchJSON(cmd *cobra.Command, result domain.QueryResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, matches []domain.Match) error {
	if len(matches) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range matches {
		m := &matches[i]
		name := m.DocumentName
		if name == "" {
			name = m.Source
		}

		marker := ""
		if m.Exact {
			marker = " [exact]"
		}
		cmd.Printf("  [%d] %s, page %d (%.2f)%s\n", i+1, name, m.Page, m.Similarity, marker)
		if m.Value != "" {
			cmd.Printf("      Value: %s\n", m.Value)
		}
		if m.ContextBefore != "" {
			cmd.Printf("      ... %s\n", m.ContextBefore)
		}
		cmd.Printf("      %s\n", m.Text)
		if m.ContextAfter != "" {
			cmd.Printf("      %s ...\n", m.ContextAfter)
		}
		cmd.Println()
	}

	return nil
}

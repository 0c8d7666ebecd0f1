package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/esgrag/internal/adapters/driving/mcp"
	"github.com/custodia-labs/esgrag/internal/core/domain"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server so AI assistants can search the
report collection and inspect index state.

Tools:
  search_criterion  ranked passages disclosing a criterion
  index_status      entry counts per collection

By default the server communicates over stdio using JSON-RPC. Use --port to
serve the streamable HTTP transport instead.

Examples:
  # Stdio mode (default)
  esgrag mcp serve

  # HTTP mode (for MCP Inspector, remote access)
  esgrag mcp serve --port 8080`,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}

	server, err := mcp.NewServer(mcpPorts())
	if err != nil {
		return err
	}

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		fmt.Fprintf(cmd.OutOrStdout(), "MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}

	return server.Run(cmd.Context())
}

func mcpPorts() *mcp.Ports {
	ports := &mcp.Ports{Indexes: make(map[domain.SourceKind]mcp.IndexReader)}
	if reports, err := collection(domain.SourceReport); err == nil && reports.Searcher != nil {
		ports.Search = reports.Searcher
	}
	for _, kind := range collectionKinds() {
		ports.Indexes[kind] = appConfig.Collections[kind].Index
	}
	return ports
}

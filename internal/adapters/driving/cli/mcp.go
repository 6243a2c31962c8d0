package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/quire/internal/adapters/driving/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server so AI assistants can ask questions
against the indexed site. It exposes the ask and health tools.

By default the server communicates over stdio using JSON-RPC.
Use --port to serve over HTTP instead, for MCP Inspector or remote access.

Examples:
  # Stdio mode
  quire mcp serve

  # HTTP mode
  quire mcp serve --port 8081

Assistant configuration:
  {
    "mcpServers": {
      "quire": {
        "command": "/path/to/quire",
        "args": ["mcp", "serve"]
      }
    }
  }`,
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

	c, err := openContainer()
	if err != nil {
		return err
	}
	defer c.Close()

	answers, err := c.Answer(cmd.Context())
	if err != nil {
		return err
	}

	server, err := mcp.NewServer(&mcp.Ports{
		Answer: answers,
		Health: c.Health(),
	})
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

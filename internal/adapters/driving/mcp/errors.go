// Package mcp provides an MCP (Model Context Protocol) server adapter for quire.
// It lets AI assistants ask grounded questions about the indexed site.
package mcp

import "errors"

// ErrMissingAnswerService is returned when the answer service is not provided.
var ErrMissingAnswerService = errors.New("mcp: answer service is required")

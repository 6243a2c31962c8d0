// Package driving defines the interfaces that outer adapters call INTO core.
//
// These are the "driving" or "primary" ports in hexagonal architecture.
// The CLI, the HTTP API and the MCP server depend on these interfaces;
// core services implement them.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driving

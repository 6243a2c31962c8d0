package mcp

import (
	"github.com/custodia-labs/quire/internal/core/ports/driving"
)

// Ports aggregates the driving ports the MCP server exposes.
type Ports struct {
	// Answer answers questions. Required.
	Answer driving.AnswerService

	// Health reports store liveness. Optional; without it the health
	// tool and resource are not registered.
	Health driving.HealthService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Answer == nil {
		return ErrMissingAnswerService
	}
	return nil
}

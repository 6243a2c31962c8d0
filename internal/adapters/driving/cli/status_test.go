package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/quire/internal/core/domain"
)

func TestStatusCmd_Healthy(t *testing.T) {
	fake := setupTestServices(t)
	fake.health.status = domain.HealthStatus{
		Reachable:  true,
		Chunks:     1234,
		Model:      "nomic-embed-text",
		Dimensions: 768,
	}

	out, err := execute(t, "status")

	require.NoError(t, err)
	assert.Contains(t, out, "healthy")
	assert.Contains(t, out, "1234")
	assert.Contains(t, out, "nomic-embed-text (768 dimensions)")
}

func TestStatusCmd_EmptyStore(t *testing.T) {
	setupTestServices(t)

	out, err := execute(t, "status")

	require.NoError(t, err)
	assert.Contains(t, out, "not bound")
}

func TestStatusCmd_Unreachable(t *testing.T) {
	fake := setupTestServices(t)
	fake.health.status = domain.HealthStatus{Err: "database is locked"}

	out, err := execute(t, "status")

	assert.ErrorIs(t, err, errUnreachable)
	assert.Contains(t, out, "unreachable: database is locked")
}

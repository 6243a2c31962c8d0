package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/quire/internal/core/domain"
)

func TestConfigShow_ListsSources(t *testing.T) {
	setupTestServices(t)
	t.Setenv("QUIRE_LLM_MODEL", "llama3.1")

	out, err := execute(t, "config", "show")

	require.NoError(t, err)
	assert.Regexp(t, `llm\.model\s+llama3\.1 \[env\]`, out)
	assert.Regexp(t, `chunk\.size\s+\d+ \[default\]`, out)
}

func TestConfigSet_PersistsValue(t *testing.T) {
	setupTestServices(t)

	out, err := execute(t, "config", "set", "chunk.size", "600")
	require.NoError(t, err)
	assert.Contains(t, out, "Set chunk.size = 600")

	out, err = execute(t, "config", "show")
	require.NoError(t, err)
	assert.Regexp(t, `chunk\.size\s+600 \[file\]`, out)
}

func TestConfigSet_RejectsUnknownKey(t *testing.T) {
	setupTestServices(t)

	_, err := execute(t, "config", "set", "search.mode", "hybrid")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestConfigCmd_WorksWithInvalidSettings(t *testing.T) {
	setupTestServices(t)
	t.Setenv("QUIRE_CHUNK_SIZE", "0")

	out, err := execute(t, "config", "show")

	require.NoError(t, err)
	assert.Contains(t, out, "Warning:")
}

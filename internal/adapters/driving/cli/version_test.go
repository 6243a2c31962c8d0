package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionCmd_Use(t *testing.T) {
	assert.Equal(t, "version", versionCmd.Use)
}

func TestVersionCmd_Executes(t *testing.T) {
	setupTestServices(t)
	originalVersion := version
	version = "test-version-1.0.0"
	defer func() { version = originalVersion }()

	out, err := execute(t, "version")

	assert.NoError(t, err)
	assert.Contains(t, out, "quire version test-version-1.0.0")
}

func TestVersionCmd_SkipsSettings(t *testing.T) {
	setupTestServices(t)
	t.Setenv("QUIRE_CHUNK_SIZE", "lots")

	out, err := execute(t, "version")

	assert.NoError(t, err)
	assert.Contains(t, out, "quire version")
}

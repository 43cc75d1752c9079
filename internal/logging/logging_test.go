package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_DiscardByDefault(t *testing.T) {
	logs := Open(DefaultOptions())
	defer logs.Close()

	assert.Equal(t, io.Discard, logs.Writer())
	logs.For("watch").Println("dropped")
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "watchrun.log")
	opts := DefaultOptions()
	opts.File = path

	logs := Open(opts)
	logs.For("supervisor").Printf("Started pid %d", 42)
	require.NoError(t, logs.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	assert.True(t, strings.HasPrefix(line, "[supervisor] "), line)
	assert.True(t, strings.HasSuffix(line, "Started pid 42"), line)
}

func TestClose_WithoutFile(t *testing.T) {
	logs := Open(Options{Verbose: true})
	assert.Equal(t, os.Stderr, logs.Writer())
	assert.NoError(t, logs.Close())
}

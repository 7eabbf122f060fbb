package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequest(t *testing.T) {
	req := buildRequest("<p>hi</p>", renderFlags{
		format:          "letter",
		landscape:       true,
		printBackground: false,
		scale:           0.5,
		margin:          "10mm",
		timeout:         3 * time.Second,
	})

	require.NoError(t, req.Validate())
	assert.Equal(t, "landscape", req.Orientation)
	assert.Equal(t, 3000, req.Timeout)
	require.NotNil(t, req.PrintBackground)
	assert.False(t, *req.PrintBackground)

	m, err := req.Margin.Inches()
	require.NoError(t, err)
	assert.InDelta(t, 10/25.4, m.Left, 1e-9)
}

func TestReadWriteFiles(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.html")
	require.NoError(t, os.WriteFile(in, []byte("<p>x</p>"), 0o600))

	b, err := readInput(in)
	require.NoError(t, err)
	assert.Equal(t, "<p>x</p>", string(b))

	_, err = readInput(filepath.Join(dir, "missing.html"))
	assert.Error(t, err)

	out := filepath.Join(dir, "out.pdf")
	require.NoError(t, writeOutput(out, []byte("%PDF")))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(got))
}

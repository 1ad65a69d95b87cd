package ui

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := Out
	Out = &buf
	t.Cleanup(func() { Out = old })
	return &buf
}

func TestPrintHelpers(t *testing.T) {
	buf := capture(t)

	PrintTitle("smpltool")
	PrintKeyValue("variant", "SMPLX")
	PrintSuccess("done")
	PrintError("failed")

	out := buf.String()
	assert.Contains(t, out, "smpltool")
	assert.Contains(t, out, "variant:")
	assert.Contains(t, out, "SMPLX")
	assert.Contains(t, out, "✓")
	assert.Contains(t, out, "✗")
}

func TestPrintTableAlignsColumns(t *testing.T) {
	buf := capture(t)

	PrintTable([]string{"Variant", "Joints"}, [][]string{
		{"SMPLX", "55"},
		{"SUPR", "75"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "Variant │ Joints")
	assert.Contains(t, lines[2], "SMPLX   │ 55")
	assert.Contains(t, lines[3], "SUPR    │ 75")
}

func TestPrintProgress(t *testing.T) {
	buf := capture(t)

	PrintProgress(1, 2, "keyframes")
	assert.NotContains(t, buf.String(), "\n")
	PrintProgress(2, 2, "keyframes")
	assert.Contains(t, buf.String(), "100% keyframes\n")

	buf.Reset()
	PrintProgress(1, 0, "nothing")
	assert.Empty(t, buf.String())
}

func TestHighlightJSON(t *testing.T) {
	doc := []byte(`{"pose": [0.1, 0.2, 0.3]}`)

	var plain bytes.Buffer
	require.NoError(t, HighlightJSON(&plain, doc, false))
	assert.Equal(t, string(doc), plain.String())

	var colored bytes.Buffer
	require.NoError(t, HighlightJSON(&colored, doc, true))
	assert.Contains(t, colored.String(), "\x1b[")
	assert.Contains(t, colored.String(), `"pose"`)
	assert.Contains(t, colored.String(), "0.2")
}

func TestHighlightYAML(t *testing.T) {
	doc := []byte("model:\n  variant: SMPLX\n")

	var colored bytes.Buffer
	require.NoError(t, Highlight(&colored, doc, "yaml", true))
	assert.Contains(t, colored.String(), "SMPLX")

	var unknown bytes.Buffer
	require.NoError(t, Highlight(&unknown, doc, "no-such-language", true))
	assert.Contains(t, unknown.String(), "variant")
}

func TestIsTerminalRegularFile(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out.txt"))
	require.NoError(t, err)
	defer f.Close()

	assert.False(t, IsTerminal(f))
}

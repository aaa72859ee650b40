package output

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_Messages(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  string
	}{
		{"success", func(w *Writer) { w.Success("3 files added") }, "✓ 3 files added\n"},
		{"successf", func(w *Writer) { w.Successf("%d files added", 3) }, "✓ 3 files added\n"},
		{"warning", func(w *Writer) { w.Warningf("%s skipped", "big.md") }, "! big.md skipped\n"},
		{"error", func(w *Writer) { w.Errorf("read %s", "a.md") }, "✗ read a.md\n"},
		{"status no icon", func(w *Writer) { w.Status("", "detail") }, "  detail\n"},
		{"statusf", func(w *Writer) { w.Statusf("+", "%s", "a.md") }, "+ a.md\n"},
		{"header", func(w *Writer) { w.Header("Store") }, "Store\n"},
		{"dim", func(w *Writer) { w.Dim("(dry run)") }, "(dry run)\n"},
		{"newline", func(w *Writer) { w.Newline() }, "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a writer with a buffer
			buf := &bytes.Buffer{}
			w := New(buf)

			// When: printing
			tt.write(w)

			// Then: plain output without color codes
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriter_NoColorForBuffers(t *testing.T) {
	w := New(&bytes.Buffer{})
	assert.False(t, w.Color())
	assert.False(t, NewPlain(os.Stdout).Color())
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.False(t, IsTerminal(f))
}

func TestWriter_Color(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &Writer{out: buf, useColor: true}

	w.Success("done")
	assert.Equal(t, ansiGreen+"✓"+ansiReset+" done\n", buf.String())
}

func TestWriter_KeyValues(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).KeyValues(
		[2]string{"records", "12"},
		[2]string{"last pass", "2 minutes ago"},
	)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "  records:    12", lines[0])
	assert.Equal(t, "  last pass:  2 minutes ago", lines[1])
}

func TestWriter_Table(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Table([]string{"ID", "SUBJECT"}, [][]string{
		{"1", "a.md"},
		{"12", "notes.md"},
	})

	assert.Equal(t, "ID  SUBJECT\n1   a.md\n12  notes.md\n", buf.String())
}

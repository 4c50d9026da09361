// File: internal/artifacts/artifacts_test.go
package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabpilot/internal/actions"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestApplyCreateAndAppend(t *testing.T) {
	s := newTestStore(t)

	notes := s.Apply([]actions.FileAction{
		{Op: actions.FileCreate, Path: "notes/summary.txt", Content: "first line"},
		{Op: actions.FileAppend, Path: "notes/summary.txt", Content: "second line"},
	}, nil)

	require.Len(t, notes, 2)
	assert.Equal(t, "Created file: notes/summary.txt", notes[0])
	assert.Equal(t, "Appended to file: notes/summary.txt", notes[1])

	data, err := os.ReadFile(filepath.Join(s.Root(), "notes", "summary.txt"))
	require.NoError(t, err)
	assert.Equal(t, "first line\nsecond line\n", string(data))
}

func TestCreateTruncatesExisting(t *testing.T) {
	s := newTestStore(t)

	s.Apply([]actions.FileAction{{Op: actions.FileCreate, Path: "a.txt", Content: "old content"}}, nil)
	s.Apply([]actions.FileAction{{Op: actions.FileCreate, Path: "a.txt", Content: "new"}}, nil)

	data, err := os.ReadFile(filepath.Join(s.Root(), "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new\n", string(data))
}

func TestAppendCreatesMissingFile(t *testing.T) {
	s := newTestStore(t)

	notes := s.Apply([]actions.FileAction{{Op: actions.FileAppend, Path: "fresh.txt", Content: "hello"}}, nil)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "Appended")

	data, err := os.ReadFile(filepath.Join(s.Root(), "fresh.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestApplyDownload(t *testing.T) {
	s := newTestStore(t)

	notes := s.Apply(nil, []actions.Download{{Path: "out/report.pdf", Data: []byte("pdf-bytes")}})
	require.Len(t, notes, 1)
	assert.Equal(t, "Saved download: out/report.pdf (9 bytes)", notes[0])

	data, err := os.ReadFile(filepath.Join(s.Root(), "out", "report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf-bytes"), data)
}

func TestPathEscapeRejected(t *testing.T) {
	s := newTestStore(t)
	outside := filepath.Join(filepath.Dir(s.Root()), "escaped.txt")

	notes := s.Apply([]actions.FileAction{
		{Op: actions.FileCreate, Path: "../escaped.txt", Content: "nope"},
		{Op: actions.FileCreate, Path: "a/../../escaped.txt", Content: "nope"},
		{Op: actions.FileCreate, Path: "/etc/passwd", Content: "nope"},
	}, []actions.Download{
		{Path: "../../escaped.bin", Data: []byte("x")},
	})

	require.Len(t, notes, 4)
	for _, note := range notes {
		assert.Contains(t, note, "Rejected")
	}
	_, err := os.Stat(outside)
	assert.True(t, os.IsNotExist(err))
}

func TestRejectionDoesNotAbortBatch(t *testing.T) {
	s := newTestStore(t)

	notes := s.Apply([]actions.FileAction{
		{Op: actions.FileCreate, Path: "../bad.txt", Content: "x"},
		{Op: actions.FileCreate, Path: "good.txt", Content: "kept"},
	}, nil)

	require.Len(t, notes, 2)
	assert.Contains(t, notes[0], "Rejected")
	assert.Equal(t, "Created file: good.txt", notes[1])

	_, err := os.Stat(filepath.Join(s.Root(), "good.txt"))
	assert.NoError(t, err)
}

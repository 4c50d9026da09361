// File: internal/actions/files_test.go
package actions

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFileActions(t *testing.T) {
	t.Run("CreateAndAppend", func(t *testing.T) {
		response := `Saving results.
[FILE: create, notes/summary.txt, First line of the summary]
[FILE: append, notes/summary.txt, Second line, with a comma]`

		got := ParseFileActions(response)
		require.Len(t, got, 2)
		assert.Equal(t, FileCreate, got[0].Op)
		assert.Equal(t, "notes/summary.txt", got[0].Path)
		assert.Equal(t, "First line of the summary", got[0].Content)
		assert.Equal(t, FileAppend, got[1].Op)
		assert.Equal(t, "Second line, with a comma", got[1].Content)
	})

	t.Run("ContentWithNestedBrackets", func(t *testing.T) {
		got := ParseFileActions(`[FILE: create, data.json, {"items": [1, 2, 3]}]`)
		require.Len(t, got, 1)
		assert.Equal(t, `{"items": [1, 2, 3]}`, got[0].Content)
	})

	t.Run("UnicodeProseAroundMarker", func(t *testing.T) {
		// İ and K lowercase to fewer bytes; the marker scan must keep its
		// offsets aligned with the original response.
		got := ParseFileActions("İşlem bitti, 300\u212a. [FILE: create, out.txt, kayıt]")
		require.Len(t, got, 1)
		assert.Equal(t, "out.txt", got[0].Path)
		assert.Equal(t, "kayıt", got[0].Content)
	})

	t.Run("MalformedMarkersSkipped", func(t *testing.T) {
		assert.Empty(t, ParseFileActions(`[FILE: delete, x.txt, boom]`), "unknown op")
		assert.Empty(t, ParseFileActions(`[FILE: create]`), "missing path and content")
		assert.Empty(t, ParseFileActions(`[FILE: create, only-path]`), "missing content")
		assert.Empty(t, ParseFileActions(`[FILE: create, , content]`), "empty path")
	})
}

func TestParseDownloads(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("hello world"))

	t.Run("SingleMarker", func(t *testing.T) {
		got := ParseDownloads("__DOWNLOAD_FILE__:out/report.txt:" + payload + ":__END_DOWNLOAD__")
		require.Len(t, got, 1)
		assert.Equal(t, "out/report.txt", got[0].Path)
		assert.Equal(t, []byte("hello world"), got[0].Data)
	})

	t.Run("MultipleMarkersInOneResponse", func(t *testing.T) {
		response := "text before __DOWNLOAD_FILE__:a.bin:" + payload + ":__END_DOWNLOAD__ between " +
			"__DOWNLOAD_FILE__:b.bin:" + payload + ":__END_DOWNLOAD__ after"
		got := ParseDownloads(response)
		require.Len(t, got, 2)
		assert.Equal(t, "a.bin", got[0].Path)
		assert.Equal(t, "b.bin", got[1].Path)
	})

	t.Run("InvalidBase64Skipped", func(t *testing.T) {
		got := ParseDownloads("__DOWNLOAD_FILE__:x.bin:!!!not-base64!!!:__END_DOWNLOAD__")
		assert.Empty(t, got)
	})

	t.Run("UnterminatedMarkerIgnored", func(t *testing.T) {
		got := ParseDownloads("__DOWNLOAD_FILE__:x.bin:" + payload)
		assert.Empty(t, got)
	})
}

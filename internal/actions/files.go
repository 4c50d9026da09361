// File: internal/actions/files.go
package actions

import (
	"encoding/base64"
	"strings"
)

// FileOp is the operation of a FILE marker.
type FileOp string

const (
	FileCreate FileOp = "create"
	FileAppend FileOp = "append"
)

// FileAction is one parsed [FILE: op, path, content] marker.
type FileAction struct {
	Op      FileOp
	Path    string
	Content string
}

// Download is one parsed __DOWNLOAD_FILE__ marker with decoded payload.
type Download struct {
	Path string
	Data []byte
}

const (
	fileMarker        = "[file:"
	downloadMarker    = "__DOWNLOAD_FILE__:"
	downloadEndMarker = ":__END_DOWNLOAD__"
)

// ParseFileActions extracts every [FILE: create|append, <path>, <content>]
// marker from a response. Content is everything after the second comma, so it
// may contain commas, newlines and balanced brackets. Malformed markers are
// skipped.
func ParseFileActions(response string) []FileAction {
	var out []FileAction
	lower := lowerASCII(response)

	pos := 0
	for {
		rel := strings.Index(lower[pos:], fileMarker)
		if rel < 0 {
			break
		}
		start := pos + rel + len(fileMarker)

		content, end, ok := scanBalanced(response, start)
		if !ok {
			break
		}
		pos = end + 1

		if fa, ok := parseFileContent(content); ok {
			out = append(out, fa)
		}
	}
	return out
}

func parseFileContent(content string) (FileAction, bool) {
	firstComma := strings.Index(content, ",")
	if firstComma < 0 {
		return FileAction{}, false
	}
	op := FileOp(strings.ToLower(strings.TrimSpace(content[:firstComma])))
	if op != FileCreate && op != FileAppend {
		return FileAction{}, false
	}

	rest := content[firstComma+1:]
	secondComma := strings.Index(rest, ",")
	if secondComma < 0 {
		return FileAction{}, false
	}
	path := strings.TrimSpace(rest[:secondComma])
	if path == "" {
		return FileAction{}, false
	}

	// Content keeps its internal whitespace; only a single leading space after
	// the comma is cosmetic and dropped.
	body := strings.TrimPrefix(rest[secondComma+1:], " ")
	return FileAction{Op: op, Path: path, Content: body}, true
}

// ParseDownloads extracts every base64 download marker
// (__DOWNLOAD_FILE__:<path>:<base64>:__END_DOWNLOAD__) from a response.
// A marker whose payload fails base64 decoding is skipped.
func ParseDownloads(response string) []Download {
	var out []Download

	pos := 0
	for {
		rel := strings.Index(response[pos:], downloadMarker)
		if rel < 0 {
			break
		}
		start := pos + rel + len(downloadMarker)

		endRel := strings.Index(response[start:], downloadEndMarker)
		if endRel < 0 {
			break
		}
		pos = start + endRel + len(downloadEndMarker)

		payload := response[start : start+endRel]
		sep := strings.Index(payload, ":")
		if sep <= 0 {
			continue
		}
		path := strings.TrimSpace(payload[:sep])
		encoded := strings.TrimSpace(payload[sep+1:])
		if path == "" || encoded == "" {
			continue
		}

		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			continue
		}
		out = append(out, Download{Path: path, Data: data})
	}
	return out
}

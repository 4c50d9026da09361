// File: internal/snapshot/snapshot_test.go
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabpilot/internal/config"
)

// fakePage implements the subset of executor.Page the snapshotter touches.
type fakePage struct {
	evalResult any
	evalErr    error
	html       string
	htmlErr    error
}

func (f *fakePage) Eval(_ context.Context, _ string, out any) error {
	if f.evalErr != nil {
		return f.evalErr
	}
	raw, err := json.Marshal(f.evalResult)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
func (f *fakePage) Navigate(context.Context, string) error        { return nil }
func (f *fakePage) NavigateHistory(context.Context, int) error    { return nil }
func (f *fakePage) Reload(context.Context) error                  { return nil }
func (f *fakePage) CaptureScreenshot(context.Context) ([]byte, error) {
	return nil, nil
}
func (f *fakePage) HTML(context.Context) (string, error)            { return f.html, f.htmlErr }
func (f *fakePage) NewTab(context.Context, string) (int, error)     { return 0, nil }
func (f *fakePage) CloseTab(context.Context, int) error             { return nil }
func (f *fakePage) SwitchTab(context.Context, int) error            { return nil }
func (f *fakePage) SetUploadFiles(context.Context, string, []string) error {
	return nil
}
func (f *fakePage) PressKey(context.Context, string, string) error { return nil }
func (f *fakePage) ArmDialog(bool, string)                         {}
func (f *fakePage) ConsoleTail(string, int) []string               { return nil }
func (f *fakePage) NetworkTail(bool, int) []string                 { return nil }

func testSnapshotter(page *fakePage) *DOMSnapshotter {
	s := New(page, config.SnapshotConfig{MaxTokens: 1000, TokenModel: "gpt-4o"}, zap.NewNop())
	s.counter = estimator{}
	return s
}

func TestCapture(t *testing.T) {
	t.Run("FromDOMWalker", func(t *testing.T) {
		page := &fakePage{evalResult: map[string]any{
			"url":   "https://example.com/login",
			"title": "Login",
			"text":  "Welcome back",
			"elements": []map[string]any{
				{"ref": "e1", "tag": "input", "type": "text", "label": "Username"},
				{"ref": "e2", "tag": "button", "label": "Sign in"},
			},
		}}

		snap, err := testSnapshotter(page).Capture(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/login", snap.URL)
		require.Len(t, snap.Elements, 2)
		assert.Equal(t, "e1", snap.Elements[0].Ref)
		assert.Equal(t, "Sign in", snap.Elements[1].Label)
	})

	t.Run("DegradesToHTMLExtraction", func(t *testing.T) {
		page := &fakePage{
			evalErr: errors.New("evaluation blocked"),
			html:    `<html><head><script>x()</script></head><body><p>Visible copy</p></body></html>`,
		}

		snap, err := testSnapshotter(page).Capture(context.Background())
		require.NoError(t, err)
		assert.Contains(t, snap.Text, "Visible copy")
		assert.NotContains(t, snap.Text, "x()")
		assert.Empty(t, snap.Elements)
	})

	t.Run("BothPathsFailing", func(t *testing.T) {
		page := &fakePage{evalErr: errors.New("no page"), htmlErr: errors.New("no target")}
		_, err := testSnapshotter(page).Capture(context.Background())
		require.Error(t, err)
	})
}

func TestRender(t *testing.T) {
	snap := &Snapshot{
		URL:   "https://example.com",
		Title: "Example",
		Text:  "Lorem ipsum dolor sit amet",
		Elements: []Element{
			{Ref: "e1", Tag: "input", Type: "checkbox", Label: "Remember me", Checked: true},
			{Ref: "e2", Tag: "a", Label: "Forgot password", Href: "/reset"},
			{Ref: "e3", Tag: "button", Label: "Sign in", Disabled: true},
		},
	}

	out := Render(snap, estimator{}, 10_000)
	assert.Contains(t, out, "URL: https://example.com")
	assert.Contains(t, out, `[e1] <input type=checkbox> "Remember me" (checked)`)
	assert.Contains(t, out, `[e2] <a> "Forgot password" href=/reset`)
	assert.Contains(t, out, "(disabled)")
	assert.Contains(t, out, "PAGE TEXT:\nLorem ipsum")
}

func TestRenderBudget(t *testing.T) {
	t.Run("TextTruncatedToBudget", func(t *testing.T) {
		snap := &Snapshot{
			URL:  "https://example.com",
			Text: strings.Repeat("word ", 2000),
		}
		out := Render(snap, estimator{}, 100)
		assert.LessOrEqual(t, estimator{}.Count(out), 110, "render should stay near the budget")
		assert.Contains(t, out, "[... truncated ...]")
	})

	t.Run("ElementsSurviveTruncation", func(t *testing.T) {
		snap := &Snapshot{
			Elements: []Element{{Ref: "e1", Tag: "button", Label: "Go"}},
			Text:     strings.Repeat("filler ", 5000),
		}
		out := Render(snap, estimator{}, 50)
		assert.Contains(t, out, "[e1]")
	})

	t.Run("ZeroBudgetDisablesTruncation", func(t *testing.T) {
		snap := &Snapshot{Text: strings.Repeat("a", 4000)}
		out := Render(snap, estimator{}, 0)
		assert.NotContains(t, out, "truncated")
	})
}

func TestExtractText(t *testing.T) {
	raw := `<html><body>
		<nav>Home</nav>
		<h1>Heading</h1>
		<p>First paragraph</p>
		<style>.x { color: red }</style>
		<script>console.log("hidden")</script>
		<div>Second <b>bold</b> block</div>
	</body></html>`

	text := ExtractText(raw)
	assert.Contains(t, text, "Heading")
	assert.Contains(t, text, "First paragraph")
	assert.Contains(t, text, "Second bold block")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "console.log")

	// Block elements separate with single newlines, inline runs with spaces.
	assert.Contains(t, text, "Home\nHeading\nFirst paragraph")
	assert.NotContains(t, text, "\n\n")
	assert.NotContains(t, text, " \n")
}

func TestEstimator(t *testing.T) {
	assert.Equal(t, 0, estimator{}.Count(""))
	assert.Equal(t, 1, estimator{}.Count("abc"))
	assert.Equal(t, 3, estimator{}.Count("abcdefghij"))
}

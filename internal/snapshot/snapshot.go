// File: internal/snapshot/snapshot.go
// Package snapshot captures the page state fed to the LLM: visible text plus
// an indexed inventory of interactive elements, trimmed to a token budget.
package snapshot

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tabpilot/internal/config"
	"github.com/xkilldash9x/tabpilot/internal/executor"
)

// Element is one interactive element surfaced to the model. Ref addresses it
// in subsequent actions.
type Element struct {
	Ref      string `json:"ref"`
	Tag      string `json:"tag"`
	Role     string `json:"role,omitempty"`
	Type     string `json:"type,omitempty"`
	Label    string `json:"label,omitempty"`
	Value    string `json:"value,omitempty"`
	Href     string `json:"href,omitempty"`
	Checked  bool   `json:"checked,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// Snapshot is one captured page state.
type Snapshot struct {
	URL      string    `json:"url"`
	Title    string    `json:"title"`
	Text     string    `json:"text"`
	Elements []Element `json:"elements"`
}

// Snapshotter is the loop controller's view of this package.
type Snapshotter interface {
	Capture(ctx context.Context) (*Snapshot, error)
}

// DOMSnapshotter captures snapshots by injecting a DOM walker into the page.
type DOMSnapshotter struct {
	page    executor.Page
	cfg     config.SnapshotConfig
	counter TokenCounter
	log     *zap.Logger
}

func New(page executor.Page, cfg config.SnapshotConfig, log *zap.Logger) *DOMSnapshotter {
	if cfg.MaxElements <= 0 {
		cfg.MaxElements = 150
	}
	return &DOMSnapshotter{
		page:    page,
		cfg:     cfg,
		counter: NewTokenCounter(cfg.TokenModel, log),
		log:     log.Named("snapshot"),
	}
}

// Capture walks the live DOM. When evaluation fails it degrades to raw HTML
// text extraction so the loop still gets page content.
func (s *DOMSnapshotter) Capture(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	if err := s.page.Eval(ctx, captureScript(s.cfg.MaxElements), &snap); err != nil {
		s.log.Warn("DOM walker failed, degrading to raw HTML extraction.", zap.Error(err))
		raw, htmlErr := s.page.HTML(ctx)
		if htmlErr != nil {
			return nil, fmt.Errorf("snapshot capture failed: %w", err)
		}
		snap = Snapshot{Text: ExtractText(raw)}
	}
	s.log.Debug("Snapshot captured.",
		zap.String("url", snap.URL),
		zap.Int("elements", len(snap.Elements)),
		zap.Int("text_bytes", len(snap.Text)))
	return &snap, nil
}

// Render formats a snapshot for the LLM and enforces the token budget. The
// element inventory is kept intact in preference to page text; text is cut
// from the end when the budget is exceeded.
func (s *DOMSnapshotter) Render(snap *Snapshot) string {
	return Render(snap, s.counter, s.cfg.MaxTokens)
}

// Render is the budget-aware formatter, exposed for callers that carry their
// own counter.
func Render(snap *Snapshot, counter TokenCounter, maxTokens int) string {
	var header strings.Builder
	if snap.URL != "" {
		fmt.Fprintf(&header, "URL: %s\n", snap.URL)
	}
	if snap.Title != "" {
		fmt.Fprintf(&header, "Title: %s\n", snap.Title)
	}
	if len(snap.Elements) > 0 {
		header.WriteString("\nINTERACTIVE ELEMENTS:\n")
		for _, el := range snap.Elements {
			header.WriteString(formatElement(el))
			header.WriteString("\n")
		}
	}

	text := strings.TrimSpace(snap.Text)
	if text == "" {
		return strings.TrimRight(header.String(), "\n")
	}

	prefix := header.String() + "\nPAGE TEXT:\n"
	if maxTokens > 0 {
		budget := maxTokens - counter.Count(prefix)
		if budget <= 0 {
			return strings.TrimRight(header.String(), "\n")
		}
		text = truncateToTokens(text, counter, budget)
	}
	return prefix + text
}

func formatElement(el Element) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] <%s", el.Ref, el.Tag)
	if el.Type != "" {
		fmt.Fprintf(&b, " type=%s", el.Type)
	}
	if el.Role != "" {
		fmt.Fprintf(&b, " role=%s", el.Role)
	}
	b.WriteString(">")
	if el.Label != "" {
		fmt.Fprintf(&b, " %q", el.Label)
	}
	if el.Value != "" {
		fmt.Fprintf(&b, " value=%q", el.Value)
	}
	if el.Href != "" {
		fmt.Fprintf(&b, " href=%s", el.Href)
	}
	if el.Checked {
		b.WriteString(" (checked)")
	}
	if el.Disabled {
		b.WriteString(" (disabled)")
	}
	return b.String()
}

// truncateToTokens cuts text to fit the budget. The first cut is
// proportional; the tail loop handles counter nonlinearity.
func truncateToTokens(text string, counter TokenCounter, budget int) string {
	const marker = "\n[... truncated ...]"
	total := counter.Count(text)
	if total <= budget {
		return text
	}
	keep := len(text) * budget / total
	for keep > 0 {
		for keep < len(text) && keep > 0 && !utf8.RuneStart(text[keep]) {
			keep--
		}
		cut := strings.TrimSpace(text[:keep]) + marker
		if counter.Count(cut) <= budget {
			return cut
		}
		keep = keep * 9 / 10
	}
	return marker
}

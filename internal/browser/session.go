// File: internal/browser/session.go
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabpilot/internal/config"
)

type tab struct {
	id     int
	ctx    context.Context
	cancel context.CancelFunc
}

// dialogState is the one-shot dialog handler armed by the handleDialog
// action. Unarmed dialogs are dismissed so the protocol never blocks.
type dialogState struct {
	mu     sync.Mutex
	armed  bool
	accept bool
	prompt string
}

func (d *dialogState) arm(accept bool, prompt string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armed = true
	d.accept = accept
	d.prompt = prompt
}

// take consumes the armed state, reporting whether it was armed.
func (d *dialogState) take() (accept bool, prompt string, armed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	armed = d.armed
	accept = d.accept
	prompt = d.prompt
	d.armed = false
	return
}

// Session is one browser window with one or more tabs. It implements
// executor.Page.
type Session struct {
	id  string
	cfg config.BrowserConfig
	log *zap.Logger

	allocCtx context.Context

	mu     sync.Mutex
	tabs   map[int]*tab
	nextID int
	cur    int
	closed bool

	capture *capture
	dialog  dialogState
}

func newSession(allocCtx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	id := uuid.New().String()
	s := &Session{
		id:       id,
		cfg:      cfg,
		log:      logger.With(zap.String("session_id", id[:8])),
		allocCtx: allocCtx,
		tabs:     map[int]*tab{},
		nextID:   1,
		capture:  newCapture(cfg.ConsoleBufferSize, cfg.NetworkBufferSize),
	}
	if _, err := s.openTab(); err != nil {
		return nil, err
	}
	s.log.Info("Browser session started.")
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// openTab creates a new tab context, starts it and installs the event
// listeners. Caller must not hold s.mu.
func (s *Session) openTab() (*tab, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("session is closed")
	}
	id := s.nextID
	s.nextID++
	tabCtx, cancel := chromedp.NewContext(s.allocCtx)
	t := &tab{id: id, ctx: tabCtx, cancel: cancel}
	s.tabs[id] = t
	s.cur = id
	s.mu.Unlock()

	s.instrument(t)

	// A first empty run forces target creation and enables the domains.
	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.Enable().Do(ctx)
	}))
	if err != nil {
		s.dropTab(id)
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	return t, nil
}

// instrument wires the passive capture buffers and the dialog handler to the
// tab's event stream.
func (s *Session) instrument(t *tab) {
	chromedp.ListenTarget(t.ctx, func(ev any) {
		switch ev := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			s.capture.addConsole(string(ev.Type), formatConsoleArgs(ev.Args))
		case *runtime.EventExceptionThrown:
			if ev.ExceptionDetails != nil {
				s.capture.addConsole("error", ev.ExceptionDetails.Error())
			}
		case *network.EventResponseReceived:
			if ev.Response != nil {
				s.capture.addNetwork(ev.Response.URL, string(ev.Type), ev.Response.Status)
			}
		case *page.EventJavascriptDialogOpening:
			go s.resolveDialog(t.ctx, ev)
		}
	})
}

func formatConsoleArgs(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		switch {
		case a == nil:
		case a.Value != nil:
			parts = append(parts, strings.Trim(string(a.Value), `"`))
		case a.Description != "":
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}

// resolveDialog answers a JavaScript dialog using the armed one-shot state,
// dismissing when nothing was armed.
func (s *Session) resolveDialog(tabCtx context.Context, ev *page.EventJavascriptDialogOpening) {
	accept, prompt, armed := s.dialog.take()
	if !armed {
		s.log.Warn("Unarmed JavaScript dialog dismissed.",
			zap.String("type", string(ev.Type)), zap.String("message", ev.Message))
		accept = false
	}
	action := chromedp.ActionFunc(func(ctx context.Context) error {
		p := page.HandleJavaScriptDialog(accept)
		if prompt != "" {
			p = p.WithPromptText(prompt)
		}
		return p.Do(ctx)
	})
	if err := chromedp.Run(tabCtx, action); err != nil {
		s.log.Warn("Failed to handle JavaScript dialog.", zap.Error(err))
	}
}

func (s *Session) current() *tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tabs[s.cur]
}

// run executes chromedp actions against the current tab, honoring the
// caller's deadline without tearing the tab down.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	t := s.current()
	if t == nil {
		return errors.New("session has no active tab")
	}
	opCtx := t.ctx
	cancel := func() {}
	if deadline, ok := ctx.Deadline(); ok {
		opCtx, cancel = context.WithDeadline(opCtx, deadline)
	}
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

// -- executor.Page --

// Eval runs a script in the current tab, awaiting promises and returning the
// value by JSON. Script exceptions surface as errors; the injected helpers
// catch their own.
func (s *Session) Eval(ctx context.Context, script string, out any) error {
	var raw json.RawMessage
	err := s.run(ctx, chromedp.Evaluate(script, &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
	}))
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if s.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.NavigationTimeout)
		defer cancel()
	}
	s.log.Debug("Navigating.", zap.String("url", url))
	return s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (s *Session) NavigateHistory(ctx context.Context, delta int) error {
	if delta < 0 {
		return s.run(ctx, chromedp.NavigateBack())
	}
	return s.run(ctx, chromedp.NavigateForward())
}

func (s *Session) Reload(ctx context.Context) error {
	return s.run(ctx, chromedp.Reload(), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (s *Session) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (s *Session) NewTab(ctx context.Context, url string) (int, error) {
	t, err := s.openTab()
	if err != nil {
		return 0, err
	}
	if url != "" {
		if err := s.Navigate(ctx, url); err != nil {
			return t.id, err
		}
	}
	return t.id, nil
}

func (s *Session) CloseTab(_ context.Context, id int) error {
	s.mu.Lock()
	if len(s.tabs) <= 1 {
		s.mu.Unlock()
		return errors.New("cannot close the last tab")
	}
	t, ok := s.tabs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("no tab with id %d", id)
	}
	delete(s.tabs, id)
	if s.cur == id {
		ids := make([]int, 0, len(s.tabs))
		for tid := range s.tabs {
			ids = append(ids, tid)
		}
		sort.Ints(ids)
		s.cur = ids[0]
	}
	s.mu.Unlock()

	t.cancel()
	return nil
}

func (s *Session) SwitchTab(ctx context.Context, id int) error {
	s.mu.Lock()
	t, ok := s.tabs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("no tab with id %d", id)
	}
	s.cur = id
	s.mu.Unlock()

	opCtx := t.ctx
	cancel := func() {}
	if deadline, ok := ctx.Deadline(); ok {
		opCtx, cancel = context.WithDeadline(opCtx, deadline)
	}
	defer cancel()
	return chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.BringToFront().Do(ctx)
	}))
}

// SetUploadFiles attaches files to a file input over the protocol; pages
// cannot populate file inputs from script.
func (s *Session) SetUploadFiles(ctx context.Context, locator string, files []string) error {
	return s.run(ctx, chromedp.SetUploadFiles(locator, files, chromedp.ByQuery))
}

// PressKey dispatches a trusted key pair, optionally focusing a locator
// first. Named keys (Enter, Escape, Tab, ArrowDown...) pass straight through
// to the protocol.
func (s *Session) PressKey(ctx context.Context, locator, key string) error {
	var actions []chromedp.Action
	if locator != "" {
		actions = append(actions, chromedp.Focus(locator, chromedp.ByQuery))
	}
	actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := input.DispatchKeyEvent(input.KeyDown).WithKey(key).Do(ctx); err != nil {
			return err
		}
		return input.DispatchKeyEvent(input.KeyUp).WithKey(key).Do(ctx)
	}))
	return s.run(ctx, actions...)
}

func (s *Session) ArmDialog(accept bool, promptText string) {
	s.dialog.arm(accept, promptText)
}

func (s *Session) ConsoleTail(level string, limit int) []string {
	return s.capture.consoleTail(level, limit)
}

func (s *Session) NetworkTail(includeStatic bool, limit int) []string {
	return s.capture.networkTail(includeStatic, limit)
}

// dropTab removes a tab record after a failed open.
func (s *Session) dropTab(id int) {
	s.mu.Lock()
	t := s.tabs[id]
	delete(s.tabs, id)
	if s.cur == id {
		for tid := range s.tabs {
			s.cur = tid
			break
		}
	}
	s.mu.Unlock()
	if t != nil {
		t.cancel()
	}
}

// Close tears down every tab and waits briefly for the targets to go away.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	tabs := make([]*tab, 0, len(s.tabs))
	for _, t := range s.tabs {
		tabs = append(tabs, t)
	}
	s.tabs = map[int]*tab{}
	s.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, shutdownGracePeriod)
	defer cancel()
	for _, t := range tabs {
		t.cancel()
		select {
		case <-t.ctx.Done():
		case <-waitCtx.Done():
			s.log.Warn("Timed out waiting for tab to close.", zap.Int("tab", t.id))
		}
	}
	s.log.Debug("Browser session closed.")
}

// Ping verifies the session still responds to protocol commands.
func (s *Session) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var title string
	return s.run(pingCtx, chromedp.Title(&title))
}

// File: internal/executor/executor.go
// Package executor turns parsed actions into page interactions. Every entry
// point returns a Result; DOM failures, missing elements and script errors are
// converted, never propagated as Go errors or panics.
package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yosssi/gohtml"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabpilot/internal/actions"
	"github.com/xkilldash9x/tabpilot/internal/config"
)

const (
	// tailLimit caps getConsole/getNetwork output lines.
	tailLimit = 50
	// htmlLimit caps the getHtml payload fed back to the model.
	htmlLimit = 100_000
)

// scriptResult is the common shape returned by the injected page scripts.
type scriptResult struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Reason string `json:"reason"`
	Value  string `json:"value"`
	Tag    string `json:"tag"`
}

// Executor executes actions against a single page.
type Executor struct {
	page     Page
	resolver *Resolver
	cfg      config.ExecutorConfig
	log      *zap.Logger

	screenshotWarn sync.Once
	lastScreenshot []byte
}

func New(page Page, cfg config.ExecutorConfig, log *zap.Logger) *Executor {
	return &Executor{
		page:     page,
		resolver: NewResolver(page, cfg, log),
		cfg:      cfg,
		log:      log.Named("executor"),
	}
}

// LastScreenshot returns the most recent capture, or nil.
func (e *Executor) LastScreenshot() []byte { return e.lastScreenshot }

// Execute runs one action and reports its outcome. The context bounds the
// whole operation including resolution and actionability waits.
func (e *Executor) Execute(ctx context.Context, a actions.Action) Result {
	e.log.Debug("Executing action.", zap.String("kind", string(a.Kind)), zap.String("target", a.Target))

	switch a.Kind {
	case actions.KindNavigate:
		if err := e.page.Navigate(ctx, a.Value); err != nil {
			return Failf(ErrDOM, "Navigation to %s failed: %v", a.Value, err)
		}
		return Successf("Navigated to %s", a.Value)

	case actions.KindBack:
		if err := e.page.NavigateHistory(ctx, -1); err != nil {
			return Failf(ErrDOM, "Could not go back: %v", err)
		}
		return Successf("Navigated back")

	case actions.KindForward:
		if err := e.page.NavigateHistory(ctx, 1); err != nil {
			return Failf(ErrDOM, "Could not go forward: %v", err)
		}
		return Successf("Navigated forward")

	case actions.KindReload:
		if err := e.page.Reload(ctx); err != nil {
			return Failf(ErrDOM, "Reload failed: %v", err)
		}
		return Successf("Page reloaded")

	case actions.KindNewTab:
		id, err := e.page.NewTab(ctx, a.Value)
		if err != nil {
			return Failf(ErrDOM, "Could not open new tab: %v", err)
		}
		return Successf("Opened tab %d", id)

	case actions.KindCloseTab:
		if err := e.page.CloseTab(ctx, a.TabID); err != nil {
			return Failf(ErrDOM, "Could not close tab %d: %v", a.TabID, err)
		}
		return Successf("Closed tab %d", a.TabID)

	case actions.KindSwitchTab:
		if err := e.page.SwitchTab(ctx, a.TabID); err != nil {
			return Failf(ErrDOM, "Could not switch to tab %d: %v", a.TabID, err)
		}
		return Successf("Switched to tab %d", a.TabID)

	case actions.KindScreenshot:
		return e.screenshot(ctx)

	case actions.KindGetHTML:
		return e.getHTML(ctx)

	case actions.KindClick:
		return e.click(ctx, a)

	case actions.KindType:
		return e.typeText(ctx, a)

	case actions.KindFillForm:
		return e.fillForm(ctx, a)

	case actions.KindRadio, actions.KindCheck:
		return e.setChecked(ctx, a, true)

	case actions.KindUncheck:
		return e.setChecked(ctx, a, false)

	case actions.KindSelect:
		return e.interact(ctx, a.Target, func(ref string) string { return selectScript(ref, a.Value) },
			fmt.Sprintf("Selected %q in %s", a.Value, a.Target))

	case actions.KindSlider:
		return e.interact(ctx, a.Target, func(ref string) string { return sliderScript(ref, a.Value) },
			fmt.Sprintf("Set slider %s to %s", a.Target, a.Value))

	case actions.KindDrag:
		return e.drag(ctx, a)

	case actions.KindHover:
		return e.interact(ctx, a.Target, hoverScript, fmt.Sprintf("Hovered over %s", a.Target))

	case actions.KindFocus:
		return e.interact(ctx, a.Target, focusScript, fmt.Sprintf("Focused %s", a.Target))

	case actions.KindClickXY:
		return e.clickAt(ctx, a.X, a.Y)

	case actions.KindScroll:
		return e.scroll(ctx, a)

	case actions.KindWaitForSelector:
		return e.waitForSelector(ctx, a)

	case actions.KindWaitForText:
		return e.waitForText(ctx, a, true)

	case actions.KindWaitForTextGone:
		return e.waitForText(ctx, a, false)

	case actions.KindUpload:
		return e.upload(ctx, a)

	case actions.KindPressKey:
		return e.pressKey(ctx, a)

	case actions.KindHandleDialog:
		e.page.ArmDialog(a.Accept, a.Value)
		verb := "accept"
		if !a.Accept {
			verb = "dismiss"
		}
		return Successf("Armed dialog handler to %s the next dialog", verb)

	case actions.KindEvaluate:
		return e.evaluate(ctx, a)

	case actions.KindGetConsole:
		return e.getConsole(a)

	case actions.KindGetNetwork:
		return e.getNetwork(ctx, a)
	}

	return Failf(ErrUnsupported, "Unsupported action: %s", a.Kind)
}

// -- Element interactions --

// interact resolves the target, waits for actionability and runs the script.
func (e *Executor) interact(ctx context.Context, target string, script func(ref string) string, okMsg string) Result {
	ref, found := e.resolver.Resolve(ctx, target)
	if !found {
		return NotFound(target)
	}
	if res, ok := e.waitActionable(ctx, ref, target); !ok {
		return res
	}
	var out scriptResult
	if err := e.page.Eval(ctx, script(ref), &out); err != nil {
		return Failf(ErrDOM, "Interaction with %s failed: %v", target, err)
	}
	if !out.OK {
		msg := out.Error
		if msg == "" {
			msg = out.Reason
		}
		return Failf(ErrDOM, "Interaction with %s failed: %s", target, msg)
	}
	return Successf("%s", okMsg)
}

func (e *Executor) click(ctx context.Context, a actions.Action) Result {
	desc := "Clicked"
	if a.Double {
		desc = "Double-clicked"
	} else if a.Right {
		desc = "Right-clicked"
	}
	return e.interact(ctx, a.Target,
		func(ref string) string { return clickScript(ref, a.Double, a.Right, a.Modifiers) },
		fmt.Sprintf("%s element: %s", desc, a.Target))
}

func (e *Executor) typeText(ctx context.Context, a actions.Action) Result {
	delay := e.cfg.TypeDelay
	if a.Slow {
		delay = e.cfg.TypeDelaySlow
	}
	msg := fmt.Sprintf("Typed %q into %s", a.Value, a.Target)
	if a.Submit {
		msg += " and submitted"
	}
	return e.interact(ctx, a.Target,
		func(ref string) string {
			return typeScript(ref, a.Value, int(delay/time.Millisecond), a.Submit)
		}, msg)
}

func (e *Executor) setChecked(ctx context.Context, a actions.Action, checked bool) Result {
	verb := "Checked"
	if !checked {
		verb = "Unchecked"
	}
	return e.interact(ctx, a.Target,
		func(ref string) string { return setCheckedScript(ref, checked) },
		fmt.Sprintf("%s %s", verb, a.Target))
}

// fillForm types each field in turn. Field order is made deterministic by
// sorting selectors; a failed field does not stop the rest.
func (e *Executor) fillForm(ctx context.Context, a actions.Action) Result {
	selectors := make([]string, 0, len(a.Fields))
	for sel := range a.Fields {
		selectors = append(selectors, sel)
	}
	sort.Strings(selectors)

	var failed []string
	for _, sel := range selectors {
		value := a.Fields[sel]
		res := e.interact(ctx, sel,
			func(ref string) string { return typeScript(ref, value, 0, false) }, "")
		if !res.OK {
			e.log.Debug("Form field failed.", zap.String("selector", sel), zap.String("error", res.Message))
			failed = append(failed, sel)
		}
	}
	if len(failed) == len(selectors) {
		return Failf(ErrDOM, "Could not fill any of the %d form fields", len(selectors))
	}
	if len(failed) > 0 {
		return Successf("Filled %d of %d form fields (failed: %s)",
			len(selectors)-len(failed), len(selectors), strings.Join(failed, ", "))
	}
	return Successf("Filled %d form fields", len(selectors))
}

func (e *Executor) drag(ctx context.Context, a actions.Action) Result {
	from, found := e.resolver.Resolve(ctx, a.Target)
	if !found {
		return NotFound(a.Target)
	}
	to, found := e.resolver.Resolve(ctx, a.ToTarget)
	if !found {
		return NotFound(a.ToTarget)
	}
	var out scriptResult
	if err := e.page.Eval(ctx, dragScript(from, to), &out); err != nil {
		return Failf(ErrDOM, "Drag failed: %v", err)
	}
	if !out.OK {
		return Failf(ErrDOM, "Drag failed: %s", out.Error)
	}
	return Successf("Dragged %s to %s", a.Target, a.ToTarget)
}

func (e *Executor) clickAt(ctx context.Context, x, y int) Result {
	var out scriptResult
	if err := e.page.Eval(ctx, clickAtScript(x, y), &out); err != nil {
		return Failf(ErrDOM, "Click at (%d, %d) failed: %v", x, y, err)
	}
	if !out.OK {
		return Failf(ErrDOM, "Click at (%d, %d) failed: %s", x, y, out.Error)
	}
	return Successf("Clicked at (%d, %d) on <%s>", x, y, out.Tag)
}

func (e *Executor) scroll(ctx context.Context, a actions.Action) Result {
	ref := ""
	if a.Target != "" {
		var found bool
		ref, found = e.resolver.Resolve(ctx, a.Target)
		if !found {
			return NotFound(a.Target)
		}
	}
	var out scriptResult
	if err := e.page.Eval(ctx, scrollScript(a.Direction, a.Amount, ref), &out); err != nil {
		return Failf(ErrDOM, "Scroll failed: %v", err)
	}
	if a.Target != "" {
		return Successf("Scrolled %s into view", a.Target)
	}
	dir := a.Direction
	if dir == "" {
		dir = "down"
	}
	return Successf("Scrolled %s", dir)
}

// -- Waits --

func (e *Executor) waitForSelector(ctx context.Context, a actions.Action) Result {
	start := time.Now()
	if _, found := e.resolver.ResolveWithin(ctx, a.Target, a.Timeout); found {
		return Successf("Element appeared: %s", a.Target)
	}
	return Failf(ErrTimeout, "Timed out after %s waiting for %s", time.Since(start).Round(time.Millisecond), a.Target)
}

// waitForText polls the page's visible text until needle presence matches
// want, honoring the action timeout (resolver default when unset).
func (e *Executor) waitForText(ctx context.Context, a actions.Action, want bool) Result {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = e.cfg.ResolveTimeout
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(e.cfg.ResolveInterval)
	defer ticker.Stop()

	start := time.Now()
	for {
		var present bool
		if err := e.page.Eval(ctx, textPresentScript(a.Value), &present); err == nil && present == want {
			if want {
				return Successf("Text appeared: %q", a.Value)
			}
			return Successf("Text disappeared: %q", a.Value)
		}
		if time.Now().After(deadline) {
			state := "appear"
			if !want {
				state = "disappear"
			}
			return Failf(ErrTimeout, "Timed out after %s waiting for text %q to %s",
				time.Since(start).Round(time.Millisecond), a.Value, state)
		}
		select {
		case <-ctx.Done():
			return Failf(ErrTimeout, "Wait for text %q cancelled", a.Value)
		case <-ticker.C:
		}
	}
}

// waitActionable polls the precondition check until the element is ready.
func (e *Executor) waitActionable(ctx context.Context, ref, target string) (Result, bool) {
	timeout := e.cfg.ActionableTimeout
	if timeout <= 0 {
		timeout = e.cfg.ResolveTimeout
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(e.cfg.ResolveInterval)
	defer ticker.Stop()

	reason := "unknown"
	for {
		var out scriptResult
		if err := e.page.Eval(ctx, actionableScript(ref), &out); err != nil {
			reason = err.Error()
		} else if out.OK {
			return Result{}, true
		} else {
			reason = out.Reason
		}
		if time.Now().After(deadline) {
			return Failf(ErrDOM, "Element %s is not interactable: %s", target, reason), false
		}
		select {
		case <-ctx.Done():
			return Failf(ErrDOM, "Wait for %s to become interactable was cancelled", target), false
		case <-ticker.C:
		}
	}
}

// -- Protocol-backed operations --

func (e *Executor) screenshot(ctx context.Context) Result {
	data, err := e.page.CaptureScreenshot(ctx)
	if err != nil {
		e.screenshotWarn.Do(func() {
			e.log.Warn("Screenshot capture is unavailable in this session.", zap.Error(err))
		})
		return Failf(ErrPermission, "Screenshot capture failed: %v", err)
	}
	e.lastScreenshot = data
	return Successf("Screenshot captured (%d bytes)", len(data))
}

func (e *Executor) getHTML(ctx context.Context) Result {
	raw, err := e.page.HTML(ctx)
	if err != nil {
		return Failf(ErrDOM, "Could not read page HTML: %v", err)
	}
	formatted := gohtml.Format(raw)
	if len(formatted) > htmlLimit {
		formatted = formatted[:htmlLimit] + "\n<!-- truncated -->"
	}
	return Successf("%s", formatted)
}

func (e *Executor) upload(ctx context.Context, a actions.Action) Result {
	ref, found := e.resolver.Resolve(ctx, a.Target)
	if !found {
		return NotFound(a.Target)
	}
	if err := e.page.SetUploadFiles(ctx, refQuery(ref), a.Files); err != nil {
		return Failf(ErrDOM, "Upload to %s failed: %v", a.Target, err)
	}
	return Successf("Attached %d file(s) to %s", len(a.Files), a.Target)
}

func (e *Executor) pressKey(ctx context.Context, a actions.Action) Result {
	locator := ""
	if a.Target != "" {
		ref, found := e.resolver.Resolve(ctx, a.Target)
		if !found {
			return NotFound(a.Target)
		}
		locator = refQuery(ref)
	}
	if err := e.page.PressKey(ctx, locator, a.Value); err != nil {
		return Failf(ErrDOM, "Key press %q failed: %v", a.Value, err)
	}
	return Successf("Pressed key: %s", a.Value)
}

// -- Script execution and diagnostics --

func (e *Executor) evaluate(ctx context.Context, a actions.Action) Result {
	if !e.cfg.AllowEvaluate {
		return Failf(ErrUnsupported, "The evaluate action is disabled; set executor.allow_evaluate to enable it")
	}
	ref := ""
	if a.Target != "" {
		var found bool
		ref, found = e.resolver.Resolve(ctx, a.Target)
		if !found {
			return NotFound(a.Target)
		}
	}
	var out scriptResult
	if err := e.page.Eval(ctx, evaluateScript(a.Value, ref), &out); err != nil {
		return Failf(ErrScript, "Script execution failed: %v", err)
	}
	if !out.OK {
		return Failf(ErrScript, "Script threw: %s", out.Error)
	}
	return Successf("Script result: %s", out.Value)
}

func (e *Executor) getConsole(a actions.Action) Result {
	lines := e.page.ConsoleTail(a.Value, tailLimit)
	if len(lines) == 0 {
		return Successf("Console log is empty.")
	}
	return Successf("Console log (%d entries):\n%s", len(lines), strings.Join(lines, "\n"))
}

// getNetwork prefers the session capture buffer and falls back to the
// Performance Resource Timing API when nothing was captured.
func (e *Executor) getNetwork(ctx context.Context, a actions.Action) Result {
	lines := e.page.NetworkTail(a.All, tailLimit)
	if len(lines) == 0 {
		if err := e.page.Eval(ctx, perfResourcesScript(a.All, tailLimit), &lines); err != nil {
			return Failf(ErrDOM, "Could not read network activity: %v", err)
		}
	}
	if len(lines) == 0 {
		return Successf("No network activity recorded.")
	}
	return Successf("Network activity (%d entries):\n%s", len(lines), strings.Join(lines, "\n"))
}

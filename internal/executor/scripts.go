// File: internal/executor/scripts.go
package executor

import (
	"encoding/json"
	"fmt"
)

// RefAttr is the attribute stamped onto elements to address them across a
// page lifetime. Snapshot refs look like "e12"; temporary refs minted during
// resolution look like "t4". Resolution always re-queries by attribute value,
// never by cached handle, so a stale ref degrades to not-found.
const RefAttr = "data-tp-ref"

// jsArg JSON-encodes a value for safe embedding into a script template.
func jsArg(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// refQuery builds the selector for a stamped ref.
func refQuery(ref string) string {
	return fmt.Sprintf(`[%s=%s]`, RefAttr, jsArg(ref))
}

// elemByRef is the lookup prelude shared by most scripts.
func elemByRef(ref string) string {
	return fmt.Sprintf(`document.querySelector(%s)`, jsArg(refQuery(ref)))
}

// refExistsScript checks whether a stamped ref is currently attached.
func refExistsScript(ref string) string {
	return fmt.Sprintf(`(() => { return %s !== null; })()`, elemByRef(ref))
}

// resolveScript maps a non-ref target descriptor to a stamped ref. Strategy:
// direct querySelector; pseudo text selectors (:has-text("..."), text="...");
// last-resort scan over clickable-ish elements matching exact-then-substring
// against visible text, aria-label, title and value. Never throws.
func resolveScript(target string) string {
	return fmt.Sprintf(`(() => {
	const attr = %s;
	const target = %s;
	const stamp = (el) => {
		let ref = el.getAttribute(attr);
		if (!ref) {
			window.__tpTmpSeq = (window.__tpTmpSeq || 0) + 1;
			ref = "t" + window.__tpTmpSeq;
			el.setAttribute(attr, ref);
		}
		return ref;
	};
	const visibleText = (el) => ((el.innerText || el.textContent || "").trim());
	try {
		const el = document.querySelector(target);
		if (el) return {found: true, ref: stamp(el)};
	} catch (e) {}
	let base = null, text = null;
	let m = target.match(/^(.*?):has-text\(["'](.*)["']\)$/);
	if (m) { base = m[1] || "*"; text = m[2]; }
	else {
		m = target.match(/^text\s*=\s*["']?(.*?)["']?$/);
		if (m) { base = "*"; text = m[1]; }
	}
	if (text !== null) {
		try {
			for (const el of document.querySelectorAll(base)) {
				if (visibleText(el).includes(text)) return {found: true, ref: stamp(el)};
			}
		} catch (e) {}
	}
	const label = target.trim();
	if (!label) return {found: false};
	const clickable = "a, button, input[type=button], input[type=submit], [role=button], [role=link], [role=tab], [role=menuitem], [onclick], label, summary";
	let partial = null;
	for (const el of document.querySelectorAll(clickable)) {
		const texts = [visibleText(el), el.getAttribute("aria-label") || "", el.getAttribute("title") || "", el.value || ""];
		if (texts.some(t => t === label)) return {found: true, ref: stamp(el)};
		if (!partial && texts.some(t => t && t.includes(label))) partial = el;
	}
	if (partial) return {found: true, ref: stamp(partial)};
	return {found: false};
})()`, jsArg(RefAttr), jsArg(target))
}

// actionableScript checks the interaction precondition: attached, laid out,
// visible, opaque and (for form controls) enabled.
func actionableScript(ref string) string {
	return fmt.Sprintf(`(() => {
	const el = %s;
	if (!el) return {ok: false, reason: "detached"};
	const r = el.getBoundingClientRect();
	if (r.width === 0 || r.height === 0) return {ok: false, reason: "zero-size box"};
	const s = window.getComputedStyle(el);
	if (s.display === "none" || s.visibility === "hidden" || parseFloat(s.opacity) === 0) return {ok: false, reason: "hidden"};
	if (el.disabled) return {ok: false, reason: "disabled"};
	return {ok: true};
})()`, elemByRef(ref))
}

// clickScript scrolls the element into view and dispatches a realistic event
// sequence at its center. Right-click dispatches contextmenu only; checkbox
// and radio inputs get their state reconciled afterwards because a synthetic
// click's default action is not guaranteed on all widgets.
func clickScript(ref string, double, right bool, modifiers []string) string {
	mods := map[string]bool{}
	for _, m := range modifiers {
		mods[m] = true
	}
	return fmt.Sprintf(`(() => {
	const el = %s;
	if (!el) return {ok: false, error: "element detached"};
	el.scrollIntoView({block: "center", inline: "center"});
	const r = el.getBoundingClientRect();
	const base = {
		bubbles: true, cancelable: true, view: window,
		clientX: r.left + r.width / 2, clientY: r.top + r.height / 2,
		altKey: %s, ctrlKey: %s, metaKey: %s, shiftKey: %s,
	};
	if (%s) {
		el.dispatchEvent(new MouseEvent("contextmenu", {...base, button: 2}));
		return {ok: true};
	}
	const wasChecked = (el.tagName === "INPUT" && (el.type === "checkbox" || el.type === "radio")) ? el.checked : null;
	el.dispatchEvent(new MouseEvent("mousedown", base));
	el.dispatchEvent(new MouseEvent("mouseup", base));
	el.dispatchEvent(new MouseEvent("click", base));
	if (%s) {
		el.dispatchEvent(new MouseEvent("mousedown", {...base, detail: 2}));
		el.dispatchEvent(new MouseEvent("mouseup", {...base, detail: 2}));
		el.dispatchEvent(new MouseEvent("click", {...base, detail: 2}));
		el.dispatchEvent(new MouseEvent("dblclick", {...base, detail: 2}));
	}
	if (wasChecked !== null && el.checked === wasChecked) {
		el.checked = el.type === "radio" ? true : !wasChecked;
		el.dispatchEvent(new Event("input", {bubbles: true}));
		el.dispatchEvent(new Event("change", {bubbles: true}));
	}
	return {ok: true};
})()`,
		elemByRef(ref),
		jsArg(mods["alt"]), jsArg(mods["ctrl"] || mods["control"]),
		jsArg(mods["meta"] || mods["cmd"]), jsArg(mods["shift"]),
		jsArg(right), jsArg(double))
}

// typeScript clears the current value then appends characters one at a time
// with keydown/input/keyup per character, finishing with change. The
// inter-character delay runs inside the page so event timing looks organic.
func typeScript(ref, text string, delayMs int, submit bool) string {
	return fmt.Sprintf(`(async () => {
	const el = %s;
	if (!el) return {ok: false, error: "element detached"};
	el.focus();
	const isField = el.tagName === "INPUT" || el.tagName === "TEXTAREA";
	const get = () => isField ? el.value : el.textContent;
	const set = (v) => { if (isField) el.value = v; else el.textContent = v; };
	set("");
	el.dispatchEvent(new Event("input", {bubbles: true}));
	const delay = %s;
	const sleep = (ms) => new Promise(r => setTimeout(r, ms));
	for (const ch of %s) {
		el.dispatchEvent(new KeyboardEvent("keydown", {key: ch, bubbles: true, cancelable: true}));
		set(get() + ch);
		el.dispatchEvent(new Event("input", {bubbles: true}));
		el.dispatchEvent(new KeyboardEvent("keyup", {key: ch, bubbles: true}));
		if (delay > 0) await sleep(delay);
	}
	el.dispatchEvent(new Event("change", {bubbles: true}));
	if (%s) {
		const enter = {key: "Enter", code: "Enter", keyCode: 13, which: 13, bubbles: true, cancelable: true};
		el.dispatchEvent(new KeyboardEvent("keydown", enter));
		el.dispatchEvent(new KeyboardEvent("keyup", enter));
		if (el.form) el.form.dispatchEvent(new Event("submit", {bubbles: true, cancelable: true}));
	}
	return {ok: true};
})()`, elemByRef(ref), jsArg(delayMs), jsArg(text), jsArg(submit))
}

// setCheckedScript flips checkbox/radio state. Native inputs get their
// property set plus input/change events; ARIA-styled widgets get attribute
// mutation plus synthetic pointer events.
func setCheckedScript(ref string, checked bool) string {
	return fmt.Sprintf(`(() => {
	const el = %s;
	if (!el) return {ok: false, error: "element detached"};
	const checked = %s;
	const fire = (t) => {
		t.dispatchEvent(new Event("input", {bubbles: true}));
		t.dispatchEvent(new Event("change", {bubbles: true}));
	};
	if (el.tagName === "INPUT" && (el.type === "checkbox" || el.type === "radio")) {
		el.checked = checked;
		fire(el);
		return {ok: true, native: true};
	}
	const inner = el.querySelector("input[type=checkbox], input[type=radio]");
	if (inner) {
		inner.checked = checked;
		fire(inner);
		return {ok: true, native: true};
	}
	const role = el.getAttribute("role");
	if (role === "checkbox" || role === "radio" || role === "switch") {
		el.setAttribute("aria-checked", String(checked));
		const opts = {bubbles: true, cancelable: true};
		el.dispatchEvent(new PointerEvent("pointerdown", opts));
		el.dispatchEvent(new PointerEvent("pointerup", opts));
		el.dispatchEvent(new MouseEvent("click", opts));
		return {ok: true, native: false};
	}
	return {ok: false, error: "no checkable control"};
})()`, elemByRef(ref), jsArg(checked))
}

// selectScript picks an option by value or visible text on a native <select>,
// falling back to clicking a [role=option] descendant for ARIA listboxes.
func selectScript(ref, value string) string {
	return fmt.Sprintf(`(() => {
	const el = %s;
	if (!el) return {ok: false, error: "element detached"};
	const value = %s;
	if (el.tagName === "SELECT") {
		for (const opt of el.options) {
			if (opt.value === value || opt.text.trim() === value) {
				el.value = opt.value;
				el.dispatchEvent(new Event("input", {bubbles: true}));
				el.dispatchEvent(new Event("change", {bubbles: true}));
				return {ok: true, value: opt.value};
			}
		}
		return {ok: false, error: "option not found"};
	}
	const options = el.querySelectorAll("[role=option]");
	for (const opt of options) {
		const text = (opt.textContent || "").trim();
		if (text === value || text.includes(value)) {
			opt.dispatchEvent(new MouseEvent("click", {bubbles: true, cancelable: true}));
			el.setAttribute("aria-activedescendant", opt.id || "");
			return {ok: true, value: text};
		}
	}
	return {ok: false, error: "option not found"};
})()`, elemByRef(ref), jsArg(value))
}

// sliderScript sets a range input's value, or aria-valuenow for ARIA sliders.
func sliderScript(ref, value string) string {
	return fmt.Sprintf(`(() => {
	const el = %s;
	if (!el) return {ok: false, error: "element detached"};
	const value = %s;
	if (el.tagName === "INPUT" && el.type === "range") {
		el.value = value;
		el.dispatchEvent(new Event("input", {bubbles: true}));
		el.dispatchEvent(new Event("change", {bubbles: true}));
		return {ok: true, value: el.value};
	}
	if (el.getAttribute("role") === "slider") {
		el.setAttribute("aria-valuenow", value);
		const opts = {bubbles: true, cancelable: true};
		el.dispatchEvent(new PointerEvent("pointerdown", opts));
		el.dispatchEvent(new PointerEvent("pointerup", opts));
		return {ok: true, value: value};
	}
	return {ok: false, error: "not a slider"};
})()`, elemByRef(ref), jsArg(value))
}

// dragScript dispatches the full HTML5 drag sequence with a shared
// DataTransfer from the start element's center to the end element's center.
func dragScript(fromRef, toRef string) string {
	return fmt.Sprintf(`(() => {
	const src = %s;
	const dst = %s;
	if (!src) return {ok: false, error: "source detached"};
	if (!dst) return {ok: false, error: "destination detached"};
	const dt = new DataTransfer();
	const center = (el) => {
		const r = el.getBoundingClientRect();
		return {clientX: r.left + r.width / 2, clientY: r.top + r.height / 2};
	};
	const from = center(src), to = center(dst);
	const ev = (type, at) => new DragEvent(type, {bubbles: true, cancelable: true, dataTransfer: dt, ...at});
	src.dispatchEvent(ev("dragstart", from));
	src.dispatchEvent(ev("drag", from));
	dst.dispatchEvent(ev("dragenter", to));
	dst.dispatchEvent(ev("dragover", to));
	dst.dispatchEvent(ev("drop", to));
	src.dispatchEvent(ev("dragend", to));
	return {ok: true};
})()`, elemByRef(fromRef), elemByRef(toRef))
}

// hoverScript dispatches mouse hover events at the element's center.
func hoverScript(ref string) string {
	return fmt.Sprintf(`(() => {
	const el = %s;
	if (!el) return {ok: false, error: "element detached"};
	el.scrollIntoView({block: "center", inline: "center"});
	const r = el.getBoundingClientRect();
	const at = {bubbles: true, cancelable: true, clientX: r.left + r.width / 2, clientY: r.top + r.height / 2};
	el.dispatchEvent(new MouseEvent("mouseover", at));
	el.dispatchEvent(new MouseEvent("mouseenter", {...at, bubbles: false}));
	el.dispatchEvent(new MouseEvent("mousemove", at));
	return {ok: true};
})()`, elemByRef(ref))
}

func focusScript(ref string) string {
	return fmt.Sprintf(`(() => {
	const el = %s;
	if (!el) return {ok: false, error: "element detached"};
	el.focus();
	return {ok: document.activeElement === el};
})()`, elemByRef(ref))
}

// clickAtScript clicks whatever element sits at viewport coordinates (x, y).
func clickAtScript(x, y int) string {
	return fmt.Sprintf(`(() => {
	const el = document.elementFromPoint(%d, %d);
	if (!el) return {ok: false, error: "no element at point"};
	const at = {bubbles: true, cancelable: true, clientX: %d, clientY: %d};
	el.dispatchEvent(new MouseEvent("mousedown", at));
	el.dispatchEvent(new MouseEvent("mouseup", at));
	el.dispatchEvent(new MouseEvent("click", at));
	return {ok: true, tag: el.tagName.toLowerCase()};
})()`, x, y, x, y)
}

// scrollScript scrolls the window (or a target element into view).
func scrollScript(direction string, amount int, ref string) string {
	if ref != "" {
		return fmt.Sprintf(`(() => {
	const el = %s;
	if (!el) return {ok: false, error: "element detached"};
	el.scrollIntoView({block: "center", behavior: "smooth"});
	return {ok: true};
})()`, elemByRef(ref))
	}
	if amount <= 0 {
		amount = 600
	}
	return fmt.Sprintf(`(() => {
	const dir = %s;
	const amount = %d;
	switch (dir) {
	case "top": window.scrollTo(0, 0); break;
	case "bottom": window.scrollTo(0, document.body.scrollHeight); break;
	case "up": window.scrollBy(0, -amount); break;
	case "left": window.scrollBy(-amount, 0); break;
	case "right": window.scrollBy(amount, 0); break;
	default: window.scrollBy(0, amount);
	}
	return {ok: true, y: window.scrollY};
})()`, jsArg(direction), amount)
}

// textPresentScript probes whether the page's visible text contains needle.
func textPresentScript(needle string) string {
	return fmt.Sprintf(`(() => {
	return !!(document.body && document.body.innerText.includes(%s));
})()`, jsArg(needle))
}

// evaluateScript wraps user script text with an optional element binding and
// a catch-all so a throwing script degrades to an error result. A script that
// evaluates to a function is invoked with the bound element.
func evaluateScript(script, ref string) string {
	elemExpr := "null"
	if ref != "" {
		elemExpr = elemByRef(ref)
	}
	return fmt.Sprintf(`(async () => {
	const element = %s;
	try {
		let result = eval(%s);
		if (typeof result === "function") result = result(element);
		result = await Promise.resolve(result);
		let rendered;
		try { rendered = result === undefined ? "undefined" : JSON.stringify(result); }
		catch (e) { rendered = String(result); }
		return {ok: true, value: rendered};
	} catch (e) {
		return {ok: false, error: String(e)};
	}
})()`, elemExpr, jsArg(script))
}

// perfResourcesScript is the getNetwork fallback for pages where no capture
// buffer is available: it reads the Performance Resource Timing API,
// optionally excluding common static-resource extensions.
func perfResourcesScript(includeStatic bool, limit int) string {
	return fmt.Sprintf(`(() => {
	const staticExts = ["css", "js", "png", "jpg", "jpeg", "gif", "svg", "ico", "woff", "woff2", "ttf", "map"];
	return performance.getEntriesByType("resource")
		.filter(e => {
			if (%s) return true;
			const path = e.name.split("?")[0];
			const ext = path.includes(".") ? path.split(".").pop().toLowerCase() : "";
			return !staticExts.includes(ext);
		})
		.slice(-%d)
		.map(e => (e.initiatorType || "resource") + " " + e.name + " " + Math.round(e.duration) + "ms");
})()`, jsArg(includeStatic), limit)
}

// File: internal/snapshot/script.go
package snapshot

import (
	"fmt"

	"github.com/xkilldash9x/tabpilot/internal/executor"
)

// interactiveSelector enumerates element classes worth surfacing to the
// model.
const interactiveSelector = `a[href], button, input, select, textarea, ` +
	`[role=button], [role=link], [role=checkbox], [role=radio], [role=tab], ` +
	`[role=menuitem], [role=combobox], [role=listbox], [role=slider], ` +
	`[role=switch], [role=textbox], [onclick], [contenteditable=true], summary`

// captureScript walks the visible DOM, stamps a stable ref onto every
// interactive element (monotonic per-page counter, existing stamps are kept)
// and returns the page text plus an indexed element inventory.
func captureScript(maxElements int) string {
	return fmt.Sprintf(`(() => {
	const attr = %q;
	window.__tpRefSeq = window.__tpRefSeq || 0;
	const visible = (el) => {
		const r = el.getBoundingClientRect();
		if (r.width === 0 || r.height === 0) return false;
		const s = window.getComputedStyle(el);
		return s.display !== "none" && s.visibility !== "hidden" && parseFloat(s.opacity) !== 0;
	};
	const label = (el) => {
		const candidates = [
			el.getAttribute("aria-label"),
			(el.innerText || "").trim(),
			el.getAttribute("placeholder"),
			el.getAttribute("title"),
			el.getAttribute("alt"),
			el.value,
		];
		for (const c of candidates) {
			if (c && String(c).trim()) return String(c).trim().slice(0, 120);
		}
		return "";
	};
	const elements = [];
	for (const el of document.querySelectorAll(%q)) {
		if (elements.length >= %d) break;
		if (!visible(el)) continue;
		let ref = el.getAttribute(attr);
		if (!ref || !/^e\d+$/.test(ref)) {
			ref = "e" + (++window.__tpRefSeq);
			el.setAttribute(attr, ref);
		}
		const entry = {
			ref: ref,
			tag: el.tagName.toLowerCase(),
			label: label(el),
		};
		const role = el.getAttribute("role");
		if (role) entry.role = role;
		if (el.tagName === "INPUT") {
			entry.type = el.type || "text";
			if (el.type === "checkbox" || el.type === "radio") entry.checked = el.checked;
			else if (el.value) entry.value = String(el.value).slice(0, 120);
		}
		if (el.tagName === "SELECT" && el.selectedOptions.length > 0) {
			entry.value = el.selectedOptions[0].text.trim().slice(0, 120);
		}
		if (el.tagName === "A") {
			const href = el.getAttribute("href");
			if (href) entry.href = href.slice(0, 200);
		}
		if (el.disabled) entry.disabled = true;
		elements.push(entry);
	}
	return {
		url: location.href,
		title: document.title,
		text: document.body ? document.body.innerText : "",
		elements: elements,
	};
})()`, executor.RefAttr, interactiveSelector, maxElements)
}

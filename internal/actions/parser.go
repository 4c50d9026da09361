// File: internal/actions/parser.go
package actions

import (
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const actionMarker = "[action:"

// Parse converts a raw LLM response into an ordered list of typed actions.
//
// The scan is bracket-depth aware: action parameters may contain literal
// brackets (JSON arrays, arrow functions), so the closing bracket of the
// marker is the one that returns the nesting depth to zero, not the first
// ']' encountered. Malformed or underspecified entries are dropped silently;
// a bad entry never fails the whole batch.
func Parse(response string) []Action {
	var out []Action
	lower := lowerASCII(response)

	pos := 0
	for {
		rel := strings.Index(lower[pos:], actionMarker)
		if rel < 0 {
			break
		}
		start := pos + rel + len(actionMarker)

		content, end, ok := scanBalanced(response, start)
		if !ok {
			// Unterminated marker; nothing further can parse.
			break
		}
		pos = end + 1

		if action, ok := parseOne(content); ok {
			out = append(out, action)
		}
	}
	return out
}

// scanBalanced returns the text from start up to the bracket that closes the
// marker opened just before start, tracking nested '[' / ']' pairs. The
// returned index points at the closing bracket.
func scanBalanced(s string, start int) (string, int, bool) {
	depth := 1
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[start:i], i, true
			}
		}
	}
	return "", 0, false
}

// parseOne handles the content of a single marker: "<type>, <params>".
func parseOne(content string) (Action, bool) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Action{}, false
	}

	typePart := content
	params := ""
	if i := strings.Index(content, ","); i >= 0 {
		typePart = content[:i]
		params = strings.TrimSpace(content[i+1:])
	}

	rawKind := strings.ToLower(strings.TrimSpace(typePart))
	kind, ok := canonicalKind(rawKind)
	if !ok {
		// Unknown action types yield no value and are skipped.
		return Action{}, false
	}

	action := Action{Kind: kind}
	// Aliases that imply click variants.
	switch rawKind {
	case "dblclick", "doubleclick":
		action.Double = true
	case "rightclick":
		action.Right = true
	}

	if strings.HasPrefix(params, "{") {
		if !applyJSONParams(&action, params) {
			return Action{}, false
		}
	} else if !applyPositionalParams(&action, params) {
		return Action{}, false
	}

	return action, requiredFieldsPresent(action)
}

func canonicalKind(raw string) (Kind, bool) {
	if alias, ok := kindAliases[raw]; ok {
		return alias, true
	}
	switch k := Kind(raw); k {
	case KindNavigate, KindClick, KindType, KindScroll, KindBack, KindForward,
		KindReload, KindNewTab, KindCloseTab, KindSwitchTab, KindScreenshot,
		KindGetHTML, KindWaitForSelector, KindWaitForText, KindWaitForTextGone,
		KindRadio, KindCheck, KindUncheck, KindSelect, KindSlider, KindFillForm,
		KindUpload, KindDrag, KindHover, KindFocus, KindClickXY,
		KindHandleDialog, KindPressKey, KindEvaluate, KindGetConsole,
		KindGetNetwork, KindRaw:
		return k, true
	}
	return "", false
}

// jsonParams is the JSON-object form of action parameters. Several spellings
// are accepted for the same concept because LLM output is not uniform.
type jsonParams struct {
	Target      string            `json:"target"`
	Selector    string            `json:"selector"`
	Ref         string            `json:"ref"`
	URL         string            `json:"url"`
	Text        string            `json:"text"`
	Value       string            `json:"value"`
	Script      string            `json:"script"`
	Key         string            `json:"key"`
	To          string            `json:"to"`
	Destination string            `json:"destination"`
	X           *int              `json:"x"`
	Y           *int              `json:"y"`
	Amount      int               `json:"amount"`
	Index       *int              `json:"index"`
	Timeout     int               `json:"timeout"`
	Submit      bool              `json:"submit"`
	Slowly      bool              `json:"slowly"`
	Double      bool              `json:"double"`
	Right       bool              `json:"right"`
	Accept      *bool             `json:"accept"`
	All         bool              `json:"all"`
	Modifiers   []string          `json:"modifiers"`
	Fields      map[string]string `json:"fields"`
	Files       []string          `json:"files"`
	Path        string            `json:"path"`
	Direction   string            `json:"direction"`
	PromptText  string            `json:"promptText"`
}

func applyJSONParams(a *Action, params string) bool {
	// fillForm accepts either {"fields": {...}} or a bare selector→value map.
	if a.Kind == KindFillForm {
		var generic map[string]jsoniter.RawMessage
		if err := json.UnmarshalFromString(params, &generic); err != nil {
			return false
		}
		if raw, ok := generic["fields"]; ok {
			var fields map[string]string
			if err := json.Unmarshal(raw, &fields); err != nil {
				return false
			}
			a.Fields = fields
			return true
		}
		fields := make(map[string]string, len(generic))
		for key, raw := range generic {
			var val string
			if err := json.Unmarshal(raw, &val); err != nil {
				return false
			}
			fields[key] = val
		}
		a.Fields = fields
		return true
	}

	var p jsonParams
	if err := json.UnmarshalFromString(params, &p); err != nil {
		return false
	}

	a.Target = firstNonEmpty(p.Target, p.Selector, p.Ref)
	a.ToTarget = firstNonEmpty(p.To, p.Destination)
	a.Value = firstNonEmpty(p.URL, p.Text, p.Value, p.Script, p.Key, p.Path, p.PromptText)
	a.Fields = p.Fields
	a.Files = p.Files
	if p.X != nil {
		a.X = *p.X
	}
	if p.Y != nil {
		a.Y = *p.Y
	}
	a.Amount = p.Amount
	if p.Index != nil {
		a.TabID = *p.Index
	}
	if p.Timeout > 0 {
		a.Timeout = time.Duration(p.Timeout) * time.Millisecond
	}
	a.Submit = p.Submit
	a.Slow = p.Slowly
	a.Double = a.Double || p.Double
	a.Right = a.Right || p.Right
	a.All = p.All
	a.Modifiers = p.Modifiers
	if p.Accept != nil {
		a.Accept = *p.Accept
	} else if a.Kind == KindHandleDialog {
		a.Accept = true
	}
	if a.Kind == KindUpload && len(a.Files) == 0 && p.Path != "" {
		a.Files = []string{p.Path}
	}
	a.Direction = p.Direction
	return true
}

// applyPositionalParams handles comma-separated positional values with
// kind-specific coercion. Free-text fields (typed text, waited-for text,
// scripts) may themselves contain commas, so those kinds re-join the middle
// segments after trailing keyword flags and numeric suffixes are peeled off.
func applyPositionalParams(a *Action, params string) bool {
	switch a.Kind {
	case KindEvaluate, KindRaw:
		// The entire remainder is the payload, commas and all.
		a.Value = strings.TrimSpace(params)
		return true
	}

	parts := splitAndTrim(params)

	switch a.Kind {
	case KindNavigate:
		a.Value = params
	case KindClick, KindHover, KindFocus, KindCheck, KindUncheck, KindGetHTML, KindScreenshot:
		parts = peelClickFlags(a, parts)
		if len(parts) > 0 {
			a.Target = strings.Join(parts, ", ")
		}
	case KindType:
		if len(parts) < 2 {
			return false
		}
		a.Target = parts[0]
		rest := peelTypeFlags(a, parts[1:])
		a.Value = strings.Join(rest, ", ")
	case KindScroll:
		for _, part := range parts {
			lowered := strings.ToLower(part)
			switch lowered {
			case "up", "down", "top", "bottom", "left", "right":
				a.Direction = lowered
			default:
				if n, err := strconv.Atoi(part); err == nil {
					a.Amount = n
				} else {
					a.Target = part
				}
			}
		}
	case KindNewTab:
		if len(parts) > 0 {
			a.Value = parts[0]
		}
	case KindCloseTab, KindSwitchTab:
		if len(parts) > 0 {
			n, err := strconv.Atoi(parts[0])
			if err != nil {
				return false
			}
			a.TabID = n
		} else if a.Kind == KindSwitchTab {
			return false
		}
	case KindWaitForSelector:
		if len(parts) == 0 {
			return false
		}
		parts = peelTimeout(a, parts)
		a.Target = strings.Join(parts, ", ")
	case KindWaitForText, KindWaitForTextGone:
		if len(parts) == 0 {
			return false
		}
		parts = peelTimeout(a, parts)
		a.Value = strings.Join(parts, ", ")
	case KindRadio, KindSelect, KindSlider:
		if len(parts) < 1 {
			return false
		}
		a.Target = parts[0]
		if len(parts) > 1 {
			a.Value = strings.Join(parts[1:], ", ")
		}
	case KindUpload:
		if len(parts) < 2 {
			return false
		}
		a.Target = parts[0]
		a.Files = parts[1:]
	case KindDrag:
		if len(parts) != 2 {
			return false
		}
		a.Target, a.ToTarget = parts[0], parts[1]
	case KindClickXY:
		if len(parts) != 2 {
			return false
		}
		x, errX := strconv.Atoi(parts[0])
		y, errY := strconv.Atoi(parts[1])
		if errX != nil || errY != nil {
			return false
		}
		a.X, a.Y = x, y
	case KindHandleDialog:
		a.Accept = true
		if len(parts) > 0 {
			switch strings.ToLower(parts[0]) {
			case "accept", "ok", "confirm", "true":
				a.Accept = true
			case "dismiss", "cancel", "false":
				a.Accept = false
			default:
				return false
			}
			if len(parts) > 1 {
				a.Value = strings.Join(parts[1:], ", ")
			}
		}
	case KindPressKey:
		if len(parts) == 0 {
			return false
		}
		a.Value = parts[0]
		if len(parts) > 1 {
			a.Target = parts[1]
		}
	case KindGetConsole:
		if len(parts) > 0 {
			a.Value = strings.ToLower(parts[0])
		}
	case KindGetNetwork:
		if len(parts) > 0 && strings.EqualFold(parts[0], "all") {
			a.All = true
		}
	case KindFillForm:
		// Positional fillForm is not expressible; the JSON form is required.
		return false
	case KindBack, KindForward, KindReload:
		// No parameters.
	}
	return true
}

// requiredFieldsPresent enforces that the type tag's required field set is
// populated; an action missing a required field fails to parse rather than
// executing with undefined values.
func requiredFieldsPresent(a Action) bool {
	switch a.Kind {
	case KindNavigate:
		return a.Value != ""
	case KindClick, KindHover, KindFocus, KindCheck, KindUncheck, KindRadio:
		return a.Target != ""
	case KindType:
		return a.Target != ""
	case KindSelect, KindSlider:
		return a.Target != "" && a.Value != ""
	case KindWaitForSelector:
		return a.Target != ""
	case KindWaitForText, KindWaitForTextGone:
		return a.Value != ""
	case KindFillForm:
		return len(a.Fields) > 0
	case KindUpload:
		return a.Target != "" && len(a.Files) > 0
	case KindDrag:
		return a.Target != "" && a.ToTarget != ""
	case KindPressKey:
		return a.Value != ""
	case KindEvaluate:
		return a.Value != ""
	}
	return true
}

// -- Helpers --

// lowerASCII lowercases ASCII letters only, byte for byte. The markers are
// pure ASCII; full Unicode folding can change byte lengths (İ, K) and desync
// marker offsets from the original string.
func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func splitAndTrim(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		parts = append(parts, strings.TrimSpace(p))
	}
	return parts
}

// peelTypeFlags consumes trailing "submit"/"slowly" keywords.
func peelTypeFlags(a *Action, parts []string) []string {
	for len(parts) > 0 {
		switch strings.ToLower(parts[len(parts)-1]) {
		case "submit":
			a.Submit = true
		case "slowly", "slow":
			a.Slow = true
		default:
			return parts
		}
		parts = parts[:len(parts)-1]
	}
	return parts
}

// peelClickFlags consumes trailing click variant and modifier keywords.
func peelClickFlags(a *Action, parts []string) []string {
	for len(parts) > 0 {
		switch strings.ToLower(parts[len(parts)-1]) {
		case "double", "dblclick":
			a.Double = true
		case "right", "rightclick":
			a.Right = true
		case "alt", "ctrl", "control", "meta", "cmd", "shift":
			a.Modifiers = append([]string{strings.ToLower(parts[len(parts)-1])}, a.Modifiers...)
		default:
			return parts
		}
		parts = parts[:len(parts)-1]
	}
	return parts
}

// peelTimeout consumes a trailing all-digits segment as a millisecond timeout.
func peelTimeout(a *Action, parts []string) []string {
	if len(parts) < 2 {
		return parts
	}
	last := parts[len(parts)-1]
	if n, err := strconv.Atoi(last); err == nil && n > 0 {
		a.Timeout = time.Duration(n) * time.Millisecond
		return parts[:len(parts)-1]
	}
	return parts
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

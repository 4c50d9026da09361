// File: internal/actions/action.go
package actions

import "time"

// Kind is the type tag of an Action. It uniquely determines which fields of
// the Action are meaningful and which are required at parse time.
type Kind string

const (
	KindNavigate        Kind = "navigate"
	KindClick           Kind = "click"
	KindType            Kind = "type"
	KindScroll          Kind = "scroll"
	KindBack            Kind = "back"
	KindForward         Kind = "forward"
	KindReload          Kind = "reload"
	KindNewTab          Kind = "newtab"
	KindCloseTab        Kind = "closetab"
	KindSwitchTab       Kind = "switchtab"
	KindScreenshot      Kind = "screenshot"
	KindGetHTML         Kind = "gethtml"
	KindWaitForSelector Kind = "waitforselector"
	KindWaitForText     Kind = "waitfortext"
	KindWaitForTextGone Kind = "waitfortextgone"
	KindRadio           Kind = "radio"
	KindCheck           Kind = "check"
	KindUncheck         Kind = "uncheck"
	KindSelect          Kind = "select"
	KindSlider          Kind = "slider"
	KindFillForm        Kind = "fillform"
	KindUpload          Kind = "upload"
	KindDrag            Kind = "drag"
	KindHover           Kind = "hover"
	KindFocus           Kind = "focus"
	KindClickXY         Kind = "clickxy"
	KindHandleDialog    Kind = "handledialog"
	KindPressKey        Kind = "presskey"
	KindEvaluate        Kind = "evaluate"
	KindGetConsole      Kind = "getconsole"
	KindGetNetwork      Kind = "getnetwork"
	// KindRaw is the escape hatch: the unmodified parameter payload is carried
	// through for a downstream consumer to interpret.
	KindRaw Kind = "raw"
)

// kindAliases maps alternative spellings the LLM tends to produce onto
// canonical kinds.
var kindAliases = map[string]Kind{
	"goto":          KindNavigate,
	"open":          KindNavigate,
	"dblclick":      KindClick,
	"doubleclick":   KindClick,
	"rightclick":    KindClick,
	"input":         KindType,
	"fill":          KindType,
	"wait":          KindWaitForSelector,
	"waitfor":       KindWaitForSelector,
	"checkbox":      KindCheck,
	"selectoption":  KindSelect,
	"uploadfile":    KindUpload,
	"draganddrop":   KindDrag,
	"mouseover":     KindHover,
	"key":           KindPressKey,
	"keypress":      KindPressKey,
	"js":            KindEvaluate,
	"execute":       KindEvaluate,
	"console":       KindGetConsole,
	"network":       KindGetNetwork,
	"html":          KindGetHTML,
	"sourcecode":    KindGetHTML,
	"screencapture": KindScreenshot,
}

// Action is a single parsed command from the LLM response. Only the fields
// relevant to Kind are populated; everything else stays at its zero value.
type Action struct {
	Kind Kind

	// Target addresses an element: a stamped ref ("e12") or a selector.
	Target string
	// ToTarget is the drag destination.
	ToTarget string
	// Value carries kind-specific text: a URL, text to type, an option value,
	// a key name, a script body, or dialog prompt text.
	Value string
	// Fields holds selector→value pairs for fillForm.
	Fields map[string]string
	// Files holds paths for upload.
	Files []string

	X, Y    int
	Amount  int
	TabID   int
	Timeout time.Duration

	Submit    bool
	Slow      bool
	Double    bool
	Right     bool
	Accept    bool
	All       bool
	Modifiers []string

	// Direction is up/down/top/bottom for scroll.
	Direction string
}

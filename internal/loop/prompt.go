// File: internal/loop/prompt.go
package loop

import "strings"

// systemPrompt instructs the model in the action micro-syntax. The element
// refs it mentions are the ones stamped by the snapshotter.
const systemPrompt = `You are a browser automation agent. You control a real browser tab.

Each turn you receive the current page state: its URL, title, visible text and an
indexed list of interactive elements like [e12]. To act, emit action markers in
your response, one per action, executed left to right:

[ACTION: navigate, <url>]
[ACTION: click, <ref or selector>]
[ACTION: type, <ref or selector>, <text>]            (append ", submit" to press Enter)
[ACTION: waitForText, <text>, <timeout ms>]
[ACTION: waitForSelector, <selector>, <timeout ms>]
[ACTION: select, <ref>, <option>]
[ACTION: check, <ref>]  [ACTION: uncheck, <ref>]  [ACTION: radio, <ref>]
[ACTION: scroll, down]  [ACTION: back]  [ACTION: reload]
[ACTION: fillForm, {"<selector>": "<value>", ...}]
[ACTION: screenshot]  [ACTION: getHtml]  [ACTION: getConsole]  [ACTION: getNetwork]

Prefer element refs (e.g. e12) over selectors. After your actions run, you get
each action's result and a fresh page state.

To save findings, write [FILE: create, <path>, <content>] or
[FILE: append, <path>, <content>].

When the task is finished, reply WITHOUT any action markers and summarize what
was accomplished.`

// completionPhrases are recognized in a final (action-free) response purely
// to log a more specific stop reason. The absence of actions is what actually
// ends the run.
var completionPhrases = []string{
	"task complete",
	"task is complete",
	"task has been completed",
	"task accomplished",
	"goal achieved",
	"all done",
	"finished the task",
}

func matchCompletionPhrase(response string) (string, bool) {
	lowered := strings.ToLower(response)
	for _, phrase := range completionPhrases {
		if strings.Contains(lowered, phrase) {
			return phrase, true
		}
	}
	return "", false
}

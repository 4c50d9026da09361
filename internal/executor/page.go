// File: internal/executor/page.go
package executor

import "context"

// Page is the surface the executor needs from a live browser tab. It is
// implemented by *browser.Session; tests substitute a fake.
//
// Eval runs a script in the page context and unmarshals its JSON result into
// out (out may be nil when the result is irrelevant). Implementations must
// await promises so async IIFE helpers can be used for timed event sequences.
type Page interface {
	Eval(ctx context.Context, script string, out any) error
	Navigate(ctx context.Context, url string) error
	NavigateHistory(ctx context.Context, delta int) error
	Reload(ctx context.Context) error
	CaptureScreenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)

	NewTab(ctx context.Context, url string) (int, error)
	CloseTab(ctx context.Context, id int) error
	SwitchTab(ctx context.Context, id int) error

	// SetUploadFiles attaches local files to the file input addressed by the
	// resolved locator. This must happen over the debugging protocol; pages
	// cannot populate file inputs themselves.
	SetUploadFiles(ctx context.Context, locator string, files []string) error

	// PressKey dispatches a trusted key press, optionally focusing the
	// resolved locator first. An empty locator targets the active element.
	PressKey(ctx context.Context, locator string, key string) error

	// ArmDialog installs a one-shot handler for the next JavaScript dialog.
	ArmDialog(accept bool, promptText string)

	// ConsoleTail returns up to limit captured console entries, newest last,
	// optionally filtered by level ("" means all).
	ConsoleTail(level string, limit int) []string

	// NetworkTail returns up to limit captured network entries, newest last.
	// When includeStatic is false, common static-resource extensions are
	// filtered out.
	NetworkTail(includeStatic bool, limit int) []string
}

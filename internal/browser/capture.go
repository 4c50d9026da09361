// File: internal/browser/capture.go
package browser

import (
	"fmt"
	"strings"
	"sync"
)

type consoleEntry struct {
	Level string
	Text  string
}

type networkEntry struct {
	URL          string
	ResourceType string
	Status       int64
}

// staticResourceTypes are filtered from NetworkTail unless the caller asks
// for everything.
var staticResourceTypes = map[string]bool{
	"Stylesheet": true,
	"Image":      true,
	"Font":       true,
	"Media":      true,
	"Script":     true,
}

// capture holds the passive console and network buffers for one session.
// Listeners append from chromedp's event goroutine; tails are read from the
// executor, so everything is mutex-guarded. Both buffers are bounded rings.
type capture struct {
	mu         sync.Mutex
	console    []consoleEntry
	network    []networkEntry
	consoleMax int
	networkMax int
}

func newCapture(consoleMax, networkMax int) *capture {
	if consoleMax <= 0 {
		consoleMax = 200
	}
	if networkMax <= 0 {
		networkMax = 500
	}
	return &capture{consoleMax: consoleMax, networkMax: networkMax}
}

func (c *capture) addConsole(level, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.console = append(c.console, consoleEntry{Level: level, Text: text})
	if n := len(c.console) - c.consoleMax; n > 0 {
		c.console = append(c.console[:0:0], c.console[n:]...)
	}
}

func (c *capture) addNetwork(url, resourceType string, status int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.network = append(c.network, networkEntry{URL: url, ResourceType: resourceType, Status: status})
	if n := len(c.network) - c.networkMax; n > 0 {
		c.network = append(c.network[:0:0], c.network[n:]...)
	}
}

// consoleTail returns up to limit formatted console lines, newest last. An
// empty level returns all entries.
func (c *capture) consoleTail(level string, limit int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lines []string
	for _, e := range c.console {
		if level != "" && !strings.EqualFold(e.Level, level) {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", e.Level, e.Text))
	}
	if len(lines) > limit && limit > 0 {
		lines = lines[len(lines)-limit:]
	}
	return lines
}

// networkTail returns up to limit formatted network lines, newest last.
func (c *capture) networkTail(includeStatic bool, limit int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lines []string
	for _, e := range c.network {
		if !includeStatic && staticResourceTypes[e.ResourceType] {
			continue
		}
		lines = append(lines, fmt.Sprintf("%d %s (%s)", e.Status, e.URL, e.ResourceType))
	}
	if len(lines) > limit && limit > 0 {
		lines = lines[len(lines)-limit:]
	}
	return lines
}

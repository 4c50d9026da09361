// File: internal/browser/capture_test.go
package browser

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureConsoleTail(t *testing.T) {
	c := newCapture(10, 10)
	c.addConsole("log", "started")
	c.addConsole("error", "boom")
	c.addConsole("warning", "slow request")

	t.Run("AllLevels", func(t *testing.T) {
		lines := c.consoleTail("", 50)
		require.Len(t, lines, 3)
		assert.Equal(t, "[log] started", lines[0])
		assert.Equal(t, "[warning] slow request", lines[2])
	})

	t.Run("LevelFilterIsCaseInsensitive", func(t *testing.T) {
		lines := c.consoleTail("ERROR", 50)
		require.Len(t, lines, 1)
		assert.Equal(t, "[error] boom", lines[0])
	})

	t.Run("LimitKeepsNewest", func(t *testing.T) {
		lines := c.consoleTail("", 2)
		require.Len(t, lines, 2)
		assert.Equal(t, "[error] boom", lines[0])
	})
}

func TestCaptureConsoleRingBound(t *testing.T) {
	c := newCapture(5, 5)
	for i := 0; i < 20; i++ {
		c.addConsole("log", fmt.Sprintf("entry %d", i))
	}
	lines := c.consoleTail("", 100)
	require.Len(t, lines, 5)
	assert.Equal(t, "[log] entry 15", lines[0])
	assert.Equal(t, "[log] entry 19", lines[4])
}

func TestCaptureNetworkTail(t *testing.T) {
	c := newCapture(10, 10)
	c.addNetwork("https://example.com/api/items", "XHR", 200)
	c.addNetwork("https://example.com/app.css", "Stylesheet", 200)
	c.addNetwork("https://example.com/logo.png", "Image", 304)
	c.addNetwork("https://example.com/login", "Document", 302)

	t.Run("StaticFilteredByDefault", func(t *testing.T) {
		lines := c.networkTail(false, 50)
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], "/api/items")
		assert.Contains(t, lines[1], "302")
	})

	t.Run("IncludeStatic", func(t *testing.T) {
		lines := c.networkTail(true, 50)
		assert.Len(t, lines, 4)
	})
}

func TestDialogStateOneShot(t *testing.T) {
	var d dialogState

	accept, prompt, armed := d.take()
	assert.False(t, armed)
	assert.False(t, accept)
	assert.Empty(t, prompt)

	d.arm(true, "my answer")
	accept, prompt, armed = d.take()
	require.True(t, armed)
	assert.True(t, accept)
	assert.Equal(t, "my answer", prompt)

	_, _, armed = d.take()
	assert.False(t, armed, "arming must be consumed by the first dialog")
}

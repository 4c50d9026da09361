// File: internal/browser/manager.go
// Package browser owns the Chrome process and the tab sessions driven over
// the DevTools protocol via chromedp.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabpilot/internal/config"
)

const shutdownGracePeriod = 10 * time.Second

// Manager handles the browser process lifecycle and session creation.
type Manager struct {
	cfg config.BrowserConfig
	log *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc

	initOnce sync.Once
	initErr  error

	mu       sync.Mutex
	sessions []*Session
}

// NewManager creates a manager. The Chrome process is launched lazily on the
// first session request.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	return &Manager{
		cfg: cfg,
		log: logger.Named("browser"),
	}
}

// initialize builds the exec allocator that owns the Chrome process.
func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", m.cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.WindowSize(m.cfg.WindowWidth, m.cfg.WindowHeight),
		)
		if m.cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(m.cfg.ExecPath))
		}
		if m.cfg.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(m.cfg.UserAgent))
		}

		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		m.log.Info("Browser allocator initialized.",
			zap.Bool("headless", m.cfg.Headless),
			zap.Int("width", m.cfg.WindowWidth),
			zap.Int("height", m.cfg.WindowHeight))
	})
	return m.initErr
}

// NewSession launches (if needed) the browser and opens a fresh session with
// one tab.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	if err := m.initialize(ctx); err != nil {
		return nil, fmt.Errorf("browser initialization failed: %w", err)
	}

	s, err := newSession(m.allocCtx, m.cfg, m.log)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions = append(m.sessions, s)
	m.mu.Unlock()
	return s, nil
}

// Close terminates all sessions and the browser process.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = nil
	allocCancel := m.allocCancel
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close(ctx)
	}
	if allocCancel != nil {
		allocCancel()
	}
	m.log.Debug("Browser manager closed.")
}

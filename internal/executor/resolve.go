// File: internal/executor/resolve.go
package executor

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tabpilot/internal/config"
)

// refPattern matches snapshot-style element references: a bare "e12", with an
// optional "ref:" / "ref=" prefix, case-insensitive. Anything else is treated
// as a selector descriptor.
var refPattern = regexp.MustCompile(`(?i)^(?:ref\s*[:=]?\s*)?(e\d+)$`)

// IsRef reports whether target is a snapshot element reference.
func IsRef(target string) bool {
	return refPattern.MatchString(strings.TrimSpace(target))
}

// canonicalRef extracts the lowercase "eN" form from a ref target.
func canonicalRef(target string) string {
	m := refPattern.FindStringSubmatch(strings.TrimSpace(target))
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// Resolver maps action targets to stamped element refs on the live page.
type Resolver struct {
	page Page
	cfg  config.ExecutorConfig
	log  *zap.Logger
}

func NewResolver(page Page, cfg config.ExecutorConfig, log *zap.Logger) *Resolver {
	return &Resolver{page: page, cfg: cfg, log: log.Named("resolver")}
}

type resolveProbe struct {
	Found bool   `json:"found"`
	Ref   string `json:"ref"`
}

// Resolve turns a target descriptor into a stamped ref the page scripts can
// address. Refs are polled up to ResolveTimeout because the referenced element
// may still be rendering after a navigation; selector descriptors get a single
// pass through the resolution chain per attempt, polled on the same schedule.
// The returned bool is false when nothing matched before the deadline.
func (r *Resolver) Resolve(ctx context.Context, target string) (string, bool) {
	return r.ResolveWithin(ctx, target, r.cfg.ResolveTimeout)
}

// ResolveWithin is Resolve with an explicit deadline, used by wait actions
// that carry their own timeout.
func (r *Resolver) ResolveWithin(ctx context.Context, target string, timeout time.Duration) (string, bool) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", false
	}
	if timeout <= 0 {
		timeout = r.cfg.ResolveTimeout
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(r.cfg.ResolveInterval)
	defer ticker.Stop()

	isRef := IsRef(target)
	ref := canonicalRef(target)

	for attempt := 1; ; attempt++ {
		if isRef {
			var attached bool
			if err := r.page.Eval(ctx, refExistsScript(ref), &attached); err == nil && attached {
				return ref, true
			}
		} else {
			var probe resolveProbe
			if err := r.page.Eval(ctx, resolveScript(target), &probe); err != nil {
				r.log.Debug("Resolution probe failed.", zap.String("target", target), zap.Error(err))
			} else if probe.Found && probe.Ref != "" {
				if attempt > 1 {
					r.log.Debug("Target resolved after retries.",
						zap.String("target", target), zap.Int("attempts", attempt))
				}
				return probe.Ref, true
			}
		}

		if time.Now().After(deadline) {
			r.log.Debug("Target did not resolve before deadline.",
				zap.String("target", target), zap.Duration("timeout", timeout))
			return "", false
		}
		select {
		case <-ctx.Done():
			return "", false
		case <-ticker.C:
		}
	}
}

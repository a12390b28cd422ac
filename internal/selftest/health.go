// Package selftest runs health checks over agentsh's runtime dependencies.
package selftest

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joss/agentsh/internal/store"
)

// Component statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// Overall statuses.
const (
	Healthy   = "healthy"
	Degraded  = "degraded"
	Unhealthy = "unhealthy"
)

// DegradedLatency is the latency above which a passing check reports degraded.
const DegradedLatency = 100 * time.Millisecond

// CheckTimeout bounds each individual check.
const CheckTimeout = 5 * time.Second

// ComponentStatus represents health of a single component
type ComponentStatus struct {
	Status  string `json:"status"` // ok, degraded, error
	Latency int64  `json:"latency_ms,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthStatus represents overall system health
type HealthStatus struct {
	Status     string                     `json:"status"` // healthy, degraded, unhealthy
	Components map[string]ComponentStatus `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// Check is one named probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

// CheckHealth runs every check concurrently and folds the results.
func CheckHealth(ctx context.Context, checks ...Check) *HealthStatus {
	status := &HealthStatus{
		Status:     Healthy,
		Components: make(map[string]ComponentStatus, len(checks)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, c := range checks {
		wg.Add(1)
		go func(c Check) {
			defer wg.Done()
			result := run(ctx, c)
			mu.Lock()
			defer mu.Unlock()
			status.Components[c.Name] = result
			if result.Status == StatusError {
				status.Status = Unhealthy
			} else if result.Status == StatusDegraded && status.Status == Healthy {
				status.Status = Degraded
			}
		}(c)
	}

	wg.Wait()
	return status
}

func run(ctx context.Context, c Check) (result ComponentStatus) {
	ctx, cancel := context.WithTimeout(ctx, CheckTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			result = ComponentStatus{Status: StatusError, Error: fmt.Sprintf("panic: %v", rec)}
		}
		result.Latency = time.Since(start).Milliseconds()
	}()

	if err := c.Run(ctx); err != nil {
		return ComponentStatus{Status: StatusError, Error: err.Error()}
	}
	if time.Since(start) > DegradedLatency {
		return ComponentStatus{Status: StatusDegraded}
	}
	return ComponentStatus{Status: StatusOK}
}

// StoreCheck pings a session store.
func StoreCheck(name string, s store.Store) Check {
	return Check{Name: name, Run: s.Ping}
}

// DirCheck verifies dir exists and accepts writes.
func DirCheck(name, dir string) Check {
	return Check{Name: name, Run: func(context.Context) error {
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("not a directory: %s", dir)
		}
		f, err := os.CreateTemp(dir, ".probe-*")
		if err != nil {
			return fmt.Errorf("not writable: %w", err)
		}
		tmp := f.Name()
		f.Close()
		return os.Remove(tmp)
	}}
}

// Summary returns a human-readable report, one line per component.
func (h *HealthStatus) Summary() string {
	names := make([]string, 0, len(h.Components))
	for name := range h.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Status: %s\n", h.Status)
	for _, name := range names {
		c := h.Components[name]
		fmt.Fprintf(&sb, "  %-12s %-9s %4dms", name, c.Status, c.Latency)
		if c.Error != "" {
			fmt.Fprintf(&sb, "  %s", c.Error)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// OK reports whether no component failed.
func (h *HealthStatus) OK() bool {
	return h.Status != Unhealthy
}

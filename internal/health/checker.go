// Package health reports liveness of the portal and the state of its dependencies.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	apierr "github.com/victorgomez09/supportportal/internal/auth"
)

const (
	StatusUp       = "UP"
	StatusDown     = "DOWN"
	StatusDegraded = "DEGRADED"
)

// Probe checks one dependency. A nil error means healthy.
type Probe func(ctx context.Context) error

type check struct {
	name     string
	probe    Probe
	critical bool
}

// Checker runs registered probes concurrently with a per-probe timeout.
type Checker struct {
	mu      sync.RWMutex
	checks  []check
	timeout time.Duration
	logger  *zap.Logger
}

// Result is the JSON body served on /health.
type Result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func NewChecker(timeout time.Duration, logger *zap.Logger) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{timeout: timeout, logger: logger}
}

// Register adds a probe. A failing critical probe makes the service DOWN; a
// failing non critical probe only degrades it.
func (c *Checker) Register(name string, critical bool, probe Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check{name: name, probe: probe, critical: critical})
}

func (c *Checker) Check(ctx context.Context) Result {
	c.mu.RLock()
	checks := append([]check(nil), c.checks...)
	c.mu.RUnlock()

	res := Result{Status: StatusUp}
	if len(checks) == 0 {
		return res
	}

	type outcome struct {
		check
		err error
	}
	outcomes := make([]outcome, len(checks))

	var wg sync.WaitGroup
	for i, ch := range checks {
		wg.Add(1)
		go func(i int, ch check) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			outcomes[i] = outcome{check: ch, err: ch.probe(pctx)}
		}(i, ch)
	}
	wg.Wait()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].name < outcomes[j].name })

	res.Checks = make(map[string]string, len(outcomes))
	for _, o := range outcomes {
		if o.err == nil {
			res.Checks[o.name] = StatusUp
			continue
		}
		res.Checks[o.name] = StatusDown
		c.logger.Warn("Health probe failed", zap.String("probe", o.name), zap.Bool("critical", o.critical), zap.Error(o.err))
		switch {
		case o.critical:
			res.Status = StatusDown
		case res.Status == StatusUp:
			res.Status = StatusDegraded
		}
	}
	return res
}

// Handler serves the check result; DOWN answers 503.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := c.Check(r.Context())
		status := http.StatusOK
		if res.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		apierr.WriteJSON(w, status, res)
	})
}

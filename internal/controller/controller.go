// Package controller owns the scan lifecycle. It makes sure at most one scan
// request is in flight, hands results to the interpreter and reports every
// state change to the presenters.
package controller

//go:generate mockgen -destination=mocks/mock_controller.go -package=mocks . ScanRequester,Presenter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anstrom/labscan/internal/client"
	"github.com/anstrom/labscan/internal/interpret"
	"github.com/anstrom/labscan/internal/logging"
	"github.com/anstrom/labscan/internal/metrics"
	"github.com/anstrom/labscan/internal/scanning"
)

// State is the lifecycle state of the controller.
type State int

// Lifecycle states.
const (
	StateIdle State = iota
	StateScanning
	StateSucceeded
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for _, candidate := range []State{StateIdle, StateScanning, StateSucceeded, StateFailed} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Status lines shown next to the scan trigger.
const (
	StatusIdle     = "Ready to scan"
	StatusScanning = "Scan in progress…"
	StatusFailed   = "Scan failed"
)

// CompleteStatus returns the status line for a finished scan with n open
// ports.
func CompleteStatus(n int) string {
	if n == 0 {
		return "Scan complete • no open ports detected"
	}
	return fmt.Sprintf("Scan complete • %d open port(s) detected", n)
}

// ScanRequester runs one scan against the backend.
type ScanRequester interface {
	RequestScan(ctx context.Context) (*scanning.ScanResult, error)
}

// Presenter receives every update the controller publishes. Present must
// not block for long; the scan guard is held while it runs.
type Presenter interface {
	Present(ctx context.Context, update Update)
}

// InterpretFunc turns a scan result into a summary.
type InterpretFunc func(target string, findings []scanning.PortFinding) interpret.Summary

// FailureReport is the user-facing description of a failed cycle.
type FailureReport struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Hint       string `json:"hint"`
	StatusCode int    `json:"status_code,omitempty"`
}

// Update is one published view of the controller. The zero Cycle is the
// initial idle state.
type Update struct {
	Cycle  uint64 `json:"cycle"`
	State  State  `json:"state"`
	Status string `json:"status"`

	// Notice is the one-line message under the results table.
	Notice string `json:"notice,omitempty"`

	Result  *scanning.ScanResult `json:"result,omitempty"`
	Summary *interpret.Summary   `json:"summary,omitempty"`
	Failure *FailureReport       `json:"failure,omitempty"`

	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Controller runs scan cycles one at a time.
type Controller struct {
	requester  ScanRequester
	interpret  InterpretFunc
	presenters []Presenter
	metrics    *metrics.PrometheusMetrics
	logger     *logging.Logger

	busy   atomic.Bool
	cycles atomic.Uint64

	mu      sync.RWMutex
	current Update
}

// Option configures a Controller.
type Option func(*Controller)

// WithPresenter adds a presenter. Presenters are called in the order added.
func WithPresenter(p Presenter) Option {
	return func(c *Controller) {
		c.presenters = append(c.presenters, p)
	}
}

// WithInterpreter replaces the result interpreter.
func WithInterpreter(fn InterpretFunc) Option {
	return func(c *Controller) {
		c.interpret = fn
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.PrometheusMetrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// New creates an idle controller.
func New(requester ScanRequester, opts ...Option) *Controller {
	c := &Controller{
		requester: requester,
		interpret: interpret.Interpret,
		logger:    logging.Default(),
		current:   Update{State: StateIdle, Status: StatusIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.GetGlobalMetrics()
	}
	c.logger = c.logger.WithComponent("controller")
	return c
}

// AddPresenter registers a presenter after construction.
func (c *Controller) AddPresenter(p Presenter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presenters = append(c.presenters, p)
}

// Trigger runs one scan cycle and returns once it has finished. It returns
// false without doing anything if a cycle is already running.
func (c *Controller) Trigger(ctx context.Context) bool {
	if !c.acquire() {
		return false
	}
	defer c.release()

	c.runCycle(ctx)
	return true
}

// TriggerAsync starts a scan cycle in the background. It returns false if a
// cycle is already running.
func (c *Controller) TriggerAsync(ctx context.Context) bool {
	if !c.acquire() {
		return false
	}

	go func() {
		defer c.release()
		c.runCycle(ctx)
	}()
	return true
}

// Busy reports whether a cycle is in flight.
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// Snapshot returns the latest published update.
func (c *Controller) Snapshot() Update {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return c.Snapshot().State
}

func (c *Controller) acquire() bool {
	if c.busy.CompareAndSwap(false, true) {
		return true
	}
	c.metrics.IncrementIgnoredTriggers()
	c.logger.Debug("Scan already in progress, trigger ignored")
	return false
}

func (c *Controller) release() {
	c.busy.Store(false)
}

func (c *Controller) runCycle(ctx context.Context) {
	cycle := c.cycles.Add(1)
	started := time.Now()
	logger := c.logger.WithFields("cycle", cycle)

	c.publish(ctx, Update{
		Cycle:     cycle,
		State:     StateScanning,
		Status:    StatusScanning,
		StartedAt: started,
	})
	logger.Info("Scan requested")

	result, err := c.requester.RequestScan(ctx)
	if err != nil {
		c.fail(ctx, cycle, started, client.AsFailure(err))
		return
	}

	summary, err := c.safeInterpret(result)
	if err != nil {
		c.fail(ctx, cycle, started, &client.Failure{Kind: client.NetworkError, Cause: err})
		return
	}

	update := Update{
		Cycle:      cycle,
		State:      StateSucceeded,
		Status:     CompleteStatus(len(result.Ports)),
		Result:     result,
		Summary:    &summary,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if summary.Empty() {
		update.Notice = interpret.NoResultsLine
	}

	c.metrics.IncrementCycles(StateSucceeded.String())
	logger.Info("Scan succeeded",
		"target", result.Target,
		"open_ports", len(result.Ports),
		"role", summary.Role.String(),
		"duration", update.FinishedAt.Sub(started))
	c.publish(ctx, update)
}

func (c *Controller) fail(ctx context.Context, cycle uint64, started time.Time, f *client.Failure) {
	c.metrics.IncrementCycles(StateFailed.String())
	c.logger.Warn("Scan failed",
		"cycle", cycle,
		"kind", f.Kind.String(),
		"code", f.Code(),
		"error", f)

	c.publish(ctx, Update{
		Cycle:  cycle,
		State:  StateFailed,
		Status: StatusFailed,
		Notice: f.DisplayMessage(),
		Failure: &FailureReport{
			Kind:       f.Kind.String(),
			Message:    f.DisplayMessage(),
			Hint:       f.Hint(),
			StatusCode: f.StatusCode,
		},
		StartedAt:  started,
		FinishedAt: time.Now(),
	})
}

// safeInterpret runs the interpreter, turning a panic into an error.
func (c *Controller) safeInterpret(result *scanning.ScanResult) (summary interpret.Summary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("interpreting scan result: %v", r)
		}
	}()
	return c.interpret(result.Target, result.Ports), nil
}

func (c *Controller) publish(ctx context.Context, update Update) {
	c.mu.Lock()
	c.current = update
	presenters := append([]Presenter(nil), c.presenters...)
	c.mu.Unlock()

	for _, p := range presenters {
		c.present(ctx, p, update)
	}
}

func (c *Controller) present(ctx context.Context, p Presenter, update Update) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Presenter panicked", "panic", r, "state", update.State.String())
		}
	}()
	p.Present(ctx, update)
}

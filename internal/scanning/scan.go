package scanning

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/Ullaakut/nmap/v3"
	"github.com/google/uuid"

	"github.com/anstrom/labscan/internal/config"
	"github.com/anstrom/labscan/internal/errors"
	"github.com/anstrom/labscan/internal/logging"
	"github.com/anstrom/labscan/internal/metrics"
)

const stateOpen = "open"

// RunFunc executes nmap with the given options.
type RunFunc func(ctx context.Context, options ...nmap.Option) (*nmap.Run, error)

// Engine scans the lab target. It never accepts a target from its caller.
type Engine struct {
	cfg       config.LabConfig
	run       RunFunc
	resources ResourceManager
	metrics   *metrics.PrometheusMetrics
	logger    *logging.Logger
}

// NewEngine creates an engine that executes the system nmap binary.
func NewEngine(cfg config.LabConfig, m *metrics.PrometheusMetrics) *Engine {
	return NewEngineWithRunner(cfg, runNmap, m)
}

// NewEngineWithRunner creates an engine with a custom nmap runner.
func NewEngineWithRunner(cfg config.LabConfig, run RunFunc, m *metrics.PrometheusMetrics) *Engine {
	if m == nil {
		m = metrics.GetGlobalMetrics()
	}
	return &Engine{
		cfg:       cfg,
		run:       run,
		resources: NewSlotPool(cfg.MaxConcurrentScans),
		metrics:   m,
		logger:    logging.Default().WithComponent("engine"),
	}
}

// Target returns the fixed lab target.
func (e *Engine) Target() string {
	return e.cfg.Target
}

// Resources exposes the engine's concurrency limiter.
func (e *Engine) Resources() ResourceManager {
	return e.resources
}

// Close releases engine resources.
func (e *Engine) Close() error {
	return e.resources.Close()
}

// Scan runs one scan of the lab target and returns its open ports sorted by
// port number.
func (e *Engine) Scan(ctx context.Context) (*ScanResult, error) {
	scanID := uuid.NewString()
	logger := e.logger.WithScanID(scanID)

	if err := e.resources.Acquire(ctx, scanID); err != nil {
		e.metrics.IncrementScanErrors(string(errors.CodeBusy))
		return nil, errors.WrapScanErrorWithTarget(errors.CodeBusy, "scan slot unavailable", e.cfg.Target, err)
	}
	defer func() {
		e.resources.Release(scanID)
		e.metrics.SetActiveScans(e.resources.GetActiveScans())
	}()
	e.metrics.SetActiveScans(e.resources.GetActiveScans())

	if e.cfg.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ScanTimeout)
		defer cancel()
	}

	logger.InfoScan("Starting lab scan", e.cfg.Target, "top_ports", e.cfg.TopPorts, "timing", e.cfg.Timing)
	start := time.Now()

	run, err := e.run(ctx, e.options()...)
	if err != nil {
		scanErr := e.classify(ctx, err)
		e.metrics.ObserveScan("error", time.Since(start))
		e.metrics.IncrementScanErrors(string(scanErr.Code))
		logger.ErrorScan("Lab scan failed", e.cfg.Target, err, "code", scanErr.Code)
		return nil, scanErr
	}

	result := &ScanResult{
		Target: e.cfg.Target,
		Ports:  OpenPorts(run),
	}

	e.metrics.ObserveScan("success", time.Since(start))
	for protocol, count := range result.ProtocolCounts() {
		e.metrics.AddOpenPorts(protocol, count)
	}
	logger.InfoScan("Lab scan completed", e.cfg.Target, "open_ports", len(result.Ports), "duration", time.Since(start))

	return result, nil
}

// options builds the nmap profile: top ports, TCP connect, light version
// detection, no host discovery.
func (e *Engine) options() []nmap.Option {
	options := []nmap.Option{
		nmap.WithTargets(e.cfg.Target),
		nmap.WithMostCommonPorts(e.cfg.TopPorts),
		nmap.WithConnectScan(),
		nmap.WithServiceInfo(),
		nmap.WithVersionLight(),
		nmap.WithSkipHostDiscovery(),
		nmap.WithTimingTemplate(nmap.Timing(e.cfg.Timing)),
	}
	if e.cfg.BinaryPath != "" {
		options = append(options, nmap.WithBinaryPath(e.cfg.BinaryPath))
	}
	return options
}

// classify maps an nmap failure onto a coded scan error.
func (e *Engine) classify(ctx context.Context, err error) *errors.ScanError {
	switch {
	case stderrors.Is(err, nmap.ErrNmapNotInstalled):
		return errors.ErrEngineMissing(err)
	case stderrors.Is(err, nmap.ErrScanTimeout), stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		return errors.ErrScanTimeout(e.cfg.Target, err)
	case stderrors.Is(ctx.Err(), context.Canceled):
		return errors.WrapScanErrorWithTarget(errors.CodeCanceled, "scan canceled", e.cfg.Target, err)
	default:
		return errors.WrapScanErrorWithTarget(errors.CodeScanFailed, fmt.Sprintf("nmap failed: %v", err), e.cfg.Target, err)
	}
}

// runNmap creates an nmap scanner with the given options and runs it.
func runNmap(ctx context.Context, options ...nmap.Option) (*nmap.Run, error) {
	scanner, err := nmap.NewScanner(ctx, options...)
	if err != nil {
		return nil, err
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, err
	}

	if warnings != nil && len(*warnings) > 0 {
		logging.Warn("Scan completed with warnings", "warnings", *warnings)
	}

	return result, nil
}

// OpenPorts flattens an nmap run into open port findings sorted by port.
func OpenPorts(run *nmap.Run) []PortFinding {
	findings := make([]PortFinding, 0)
	if run == nil {
		return findings
	}

	for i := range run.Hosts {
		host := &run.Hosts[i]
		for j := range host.Ports {
			p := &host.Ports[j]
			if p.State.State != stateOpen {
				continue
			}
			service := p.Service.Name
			if service == "" {
				service = unknownService
			}
			findings = append(findings, PortFinding{
				Port:     int(p.ID),
				Protocol: p.Protocol,
				Service:  service,
				Product:  p.Service.Product,
				Version:  p.Service.Version,
			})
		}
	}

	sort.SliceStable(findings, func(a, b int) bool {
		return findings[a].Port < findings[b].Port
	})
	return findings
}

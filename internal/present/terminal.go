// Package present renders controller updates for people.
package present

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/olekukonko/tablewriter"

	"github.com/anstrom/labscan/internal/controller"
	"github.com/anstrom/labscan/internal/interpret"
	"github.com/anstrom/labscan/internal/scanning"
)

const bullet = "  • "

// Terminal writes each update as plain text with a results table.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer
}

// NewTerminal creates a presenter writing to out.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

// Present implements controller.Presenter.
func (t *Terminal) Present(_ context.Context, update controller.Update) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintln(t.out, update.Status)

	switch update.State {
	case controller.StateSucceeded:
		t.renderSuccess(update)
	case controller.StateFailed:
		t.renderFailure(update)
	}
}

func (t *Terminal) renderSuccess(update controller.Update) {
	if update.Result != nil && len(update.Result.Ports) > 0 {
		t.renderTable(update.Result.Ports)
	}
	if update.Notice != "" {
		fmt.Fprintln(t.out, update.Notice)
	}
	if update.Summary != nil {
		fmt.Fprintln(t.out)
		t.renderSummary(update.Summary)
	}
}

func (t *Terminal) renderTable(ports []scanning.PortFinding) {
	table := tablewriter.NewWriter(t.out)
	table.Header("Port", "Protocol", "Service", "Details")

	for _, p := range ports {
		service := p.Service
		if service == "" {
			service = "unknown"
		}
		_ = table.Append([]string{
			strconv.Itoa(p.Port),
			strings.ToUpper(p.Protocol),
			service,
			Details(p),
		})
	}

	_ = table.Render()
}

func (t *Terminal) renderSummary(s *interpret.Summary) {
	if s.Empty() {
		fmt.Fprintln(t.out, interpret.EmptyIntro)
		writeBullets(t.out, s.EmptyExplanation)
		return
	}

	fmt.Fprintln(t.out, s.Overview)
	if len(s.NotableFindings) > 0 {
		fmt.Fprintln(t.out)
		fmt.Fprintln(t.out, "Notable findings:")
		writeBullets(t.out, s.NotableFindings)
	}

	fmt.Fprintln(t.out)
	fmt.Fprintln(t.out, "Suggested next steps (lab-safe):")
	writeBullets(t.out, s.NextSteps)

	fmt.Fprintln(t.out)
	fmt.Fprintln(t.out, interpret.LabReminder)
}

func (t *Terminal) renderFailure(update controller.Update) {
	if update.Failure == nil {
		return
	}
	fmt.Fprintln(t.out, update.Failure.Message)
	fmt.Fprintln(t.out, update.Failure.Hint)
}

// Details joins a finding's product and version, skipping blanks.
func Details(p scanning.PortFinding) string {
	parts := make([]string, 0, 2)
	for _, s := range []string{p.Product, p.Version} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func writeBullets(w io.Writer, lines []string) {
	for _, line := range lines {
		fmt.Fprintln(w, bullet+line)
	}
}

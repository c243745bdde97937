// Package interpret turns a list of open ports into a short narrative about
// the scanned host: its likely role, the well-known services found and some
// lab-safe next steps.
//
// Interpret is pure. The same target and findings always produce the same
// Summary, and the package never renders anything.
package interpret

import (
	"fmt"

	"github.com/anstrom/labscan/internal/scanning"
)

// HostRole is a coarse guess at what a host is used for.
type HostRole int

// Host roles. RoleNone means no role was inferred, which only happens for an
// empty scan.
const (
	RoleNone HostRole = iota
	RoleWebServer
	RoleSSHHost
	RoleRDPHost
	RoleDatabaseHost
	RoleGeneralPurpose
)

var roleNames = map[HostRole]string{
	RoleNone:           "none",
	RoleWebServer:      "web_server",
	RoleSSHHost:        "ssh_host",
	RoleRDPHost:        "rdp_host",
	RoleDatabaseHost:   "database_host",
	RoleGeneralPurpose: "general_purpose",
}

var roleDescriptions = map[HostRole]string{
	RoleWebServer:      "likely a web application server",
	RoleSSHHost:        "likely a Linux/Unix host offering SSH access",
	RoleRDPHost:        "likely a Windows host offering remote desktop",
	RoleDatabaseHost:   "likely a database server (or a host with a database component)",
	RoleGeneralPurpose: "general-purpose host",
}

// String returns the machine-readable role name.
func (r HostRole) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("HostRole(%d)", int(r))
}

// Description returns the human-readable phrase for the role.
func (r HostRole) Description() string {
	return roleDescriptions[r]
}

// MarshalText encodes the role by name.
func (r HostRole) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role name.
func (r *HostRole) UnmarshalText(text []byte) error {
	for role, name := range roleNames {
		if name == string(text) {
			*r = role
			return nil
		}
	}
	return fmt.Errorf("unknown host role %q", text)
}

// Fixed narrative text.
const (
	DefaultNextStep = "Review each service and confirm they match the documented lab configuration."
	NoResultsLine   = "No open TCP ports were detected in the top 100 common ports."
	EmptyIntro      = "No open ports were discovered in the top 100 most common ports. In a lab, this may indicate:"
	LabReminder     = "Remember: this tool is for approved lab targets only. " +
		"Do not scan systems you do not have explicit authorization to test."
)

// EmptyExplanation lists the likely reasons a scan found nothing.
var EmptyExplanation = []string{
	"The host is down or filtered by a firewall.",
	"The services are listening on non-standard ports.",
	"You may need different scan options (with permission) to continue testing.",
}

// Summary is the narrative produced for one scan result.
type Summary struct {
	Target    string `json:"target"`
	PortCount int    `json:"port_count"`

	// Role is RoleNone when no ports were found.
	Role HostRole `json:"role"`

	// Overview is the opening sentence, empty when no ports were found.
	Overview string `json:"overview,omitempty"`

	NotableFindings  []string `json:"notable_findings"`
	NextSteps        []string `json:"next_steps"`
	EmptyExplanation []string `json:"empty_explanation,omitempty"`
}

// Empty reports whether the summary describes a scan with no open ports.
func (s *Summary) Empty() bool {
	return s.PortCount == 0
}

// Interpret builds the summary for target and its findings. Findings are
// read in the order given.
func Interpret(target string, findings []scanning.PortFinding) Summary {
	if len(findings) == 0 {
		return Summary{
			Target:           target,
			Role:             RoleNone,
			NotableFindings:  []string{},
			NextSteps:        []string{},
			EmptyExplanation: append([]string(nil), EmptyExplanation...),
		}
	}

	ports := newPortSet(findings)
	role := inferRole(ports)

	return Summary{
		Target:          target,
		PortCount:       len(findings),
		Role:            role,
		Overview:        overview(target, len(findings), role),
		NotableFindings: notableFindings(findings),
		NextSteps:       nextSteps(ports),
	}
}

func overview(target string, count int, role HostRole) string {
	return fmt.Sprintf(
		"The scan of %s found %d open TCP port(s) in the top 100 common ports. "+
			"Based on the ports and services, this host is %s in your lab.",
		target, count, role.Description())
}

// notableFindings labels every finding on a well-known port, keeping the
// findings order.
func notableFindings(findings []scanning.PortFinding) []string {
	lines := make([]string, 0, len(findings))
	for _, f := range findings {
		description, ok := WellKnownPorts[f.Port]
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("Port %d/%s – %s", f.Port, f.Protocol, description))
	}
	return lines
}

func inferRole(ports portSet) HostRole {
	for _, rule := range roleRules {
		if rule.match(ports) {
			return rule.role
		}
	}
	return RoleGeneralPurpose
}

func nextSteps(ports portSet) []string {
	steps := make([]string, 0, len(stepRules))
	for _, rule := range stepRules {
		if rule.match(ports) {
			steps = append(steps, rule.step)
		}
	}
	if len(steps) == 0 {
		steps = append(steps, DefaultNextStep)
	}
	return steps
}

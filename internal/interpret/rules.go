package interpret

import "github.com/anstrom/labscan/internal/scanning"

// WellKnownPorts maps commonly assigned ports to the description shown for
// a notable finding.
var WellKnownPorts = map[int]string{
	22:   "SSH (secure remote shell, often admin access).",
	80:   "HTTP (unencrypted web server).",
	443:  "HTTPS (encrypted web server).",
	21:   "FTP (file transfer, often older and less secure).",
	25:   "SMTP (mail server).",
	110:  "POP3 (mail retrieval).",
	143:  "IMAP (mail retrieval).",
	3306: "MySQL database.",
	5432: "PostgreSQL database.",
	3389: "RDP (remote desktop).",
}

// Port groups shared by the role and next step rules.
var (
	webPorts      = []int{80, 443}
	sshPorts      = []int{22}
	rdpPorts      = []int{3389}
	databasePorts = []int{3306, 5432}
)

// portSet records which port numbers appear in a scan.
type portSet map[int]struct{}

func newPortSet(findings []scanning.PortFinding) portSet {
	set := make(portSet, len(findings))
	for _, f := range findings {
		set[f.Port] = struct{}{}
	}
	return set
}

func (s portSet) hasAny(ports []int) bool {
	for _, p := range ports {
		if _, ok := s[p]; ok {
			return true
		}
	}
	return false
}

type predicate func(portSet) bool

func anyOf(ports []int) predicate {
	return func(s portSet) bool { return s.hasAny(ports) }
}

type roleRule struct {
	match predicate
	role  HostRole
}

// roleRules are evaluated top-down and the first match wins. A host with
// both web and SSH ports is a web server.
var roleRules = []roleRule{
	{match: anyOf(webPorts), role: RoleWebServer},
	{match: anyOf(sshPorts), role: RoleSSHHost},
	{match: anyOf(rdpPorts), role: RoleRDPHost},
	{match: anyOf(databasePorts), role: RoleDatabaseHost},
}

type stepRule struct {
	match predicate
	step  string
}

// stepRules are all evaluated, in order, regardless of the inferred role.
var stepRules = []stepRule{
	{match: anyOf(webPorts), step: "Visit the web service in a browser to see the application."},
	{match: anyOf(sshPorts), step: "Consider whether SSH is in-scope for credential testing (only if your lab rules allow it)."},
	{match: anyOf(databasePorts), step: "Treat database ports carefully; they often protect sensitive data."},
}

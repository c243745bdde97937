package scanning

// Protocols a finding can carry.
const (
	ProtocolTCP = "tcp"
	ProtocolUDP = "udp"
)

// unknownService labels open ports nmap could not fingerprint.
const unknownService = "unknown"

// PortFinding is one open port reported by the scan backend.
type PortFinding struct {
	// Port is the port number (1-65535)
	Port int `json:"port" validate:"min=1,max=65535"`
	// Protocol is the transport protocol ("tcp" or "udp")
	Protocol string `json:"protocol" validate:"oneof=tcp udp"`
	// Service is the name of the detected service, if any
	Service string `json:"service,omitempty"`
	// Product is the detected software product, if any
	Product string `json:"product,omitempty"`
	// Version is the detected product version, if any
	Version string `json:"version,omitempty"`
}

// ScanResult is the payload of a successful scan: the lab target and its
// open ports in the order the backend produced them.
type ScanResult struct {
	Target string        `json:"target" validate:"required"`
	Ports  []PortFinding `json:"ports" validate:"dive"`
}

// ProtocolCounts tallies findings per protocol.
func (r *ScanResult) ProtocolCounts() map[string]int {
	counts := make(map[string]int)
	for _, p := range r.Ports {
		counts[p.Protocol]++
	}
	return counts
}

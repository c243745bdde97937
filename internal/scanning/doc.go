// Package scanning runs the lab scan engine behind the dashboard backend.
//
// # Overview
//
// The engine scans exactly one host, the lab target from configuration. No
// caller can name a different host: the HTTP surface exposes a bare
// POST /scan with no parameters and the engine reads its target from
// config.LabConfig.
//
// # Scan Profile
//
// Every run uses the same conservative nmap profile:
//   - the most common N ports (100 by default)
//   - TCP connect scan, so no raw-socket privileges are needed
//   - light service/version detection
//   - no host discovery, so filtered hosts are still scanned
//   - timing template T4 unless configured otherwise
//
// # Results
//
// OpenPorts reduces an nmap run to PortFinding values. Only ports in the
// "open" state are kept, services nmap could not name are reported as
// "unknown", and findings are ordered by port number.
//
// # Concurrency
//
// Engine runs are bounded by a SlotPool. With the default
// capacity of one, concurrent POST /scan requests queue behind the running
// nmap process instead of starting parallel scans of the same host.
package scanning

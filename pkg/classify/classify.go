// Package classify computes the three-color health status of a client.
package classify

import "github.com/vpnsentinel/vpnsentinel/pkg/countries"

// Status is the health classification of a single client.
type Status string

const (
	// VPNBypass means the client's public IP is the server's own egress IP or is
	// unknown; traffic is almost certainly not leaving through the tunnel.
	VPNBypass Status = "vpn-bypass"
	// DNSLeak means DNS queries egress from a different country than the
	// client's public IP.
	DNSLeak Status = "dns-leak"
	// DNSUndetectable means the DNS egress location could not be determined.
	DNSUndetectable Status = "dns-undetectable"
	// Secure means none of the above conditions hold.
	Secure Status = "secure"
)

// Color returns the dashboard color associated with the status.
func (s Status) Color() string {
	switch s {
	case VPNBypass:
		return "red"
	case DNSLeak, DNSUndetectable:
		return "yellow"
	default:
		return "green"
	}
}

// Classify applies the health rules in order and returns the first match.
// clientIP, country, and dnsLoc are the sanitized values from the state entry;
// serverIP is the server's cached public egress IP ("" when not yet resolved).
func Classify(clientIP, country, dnsLoc, serverIP string) Status {
	switch {
	case clientIP == "unknown" || clientIP == "Unknown" || (serverIP != "" && clientIP == serverIP):
		return VPNBypass
	case dnsLoc != countries.Unknown && country != countries.Unknown && !countries.Equal(country, dnsLoc):
		return DNSLeak
	case dnsLoc == countries.Unknown:
		return DNSUndetectable
	default:
		return Secure
	}
}

// Package cftrace probes and parses Cloudflare trace data to learn where a
// node's DNS queries egress.
package cftrace

import (
	"fmt"
	"strings"
)

// Trace is the subset of a Cloudflare trace that identifies DNS egress: the
// ISO country of the answering edge and the IATA code of the colo that served
// the request.
type Trace struct {
	Loc  string `json:"loc"`
	Colo string `json:"colo"`
}

// IsZero reports whether no field of the trace is set.
func (t Trace) IsZero() bool {
	return t.Loc == "" && t.Colo == ""
}

// Format renders the trace in cdn-cgi/trace form. Parse(t.Format()) == t for
// any t free of whitespace and quotes.
func (t Trace) Format() string {
	return fmt.Sprintf("loc=%s\ncolo=%s\n", t.Loc, t.Colo)
}

// Parse extracts loc and colo from trace output. The tokenizer is deliberately
// tolerant: key=value pairs may be separated by newlines or any whitespace,
// tokens and values may carry surrounding quotes, unknown keys are ignored,
// and the last occurrence of a duplicated key wins. A missing key yields "".
func Parse(s string) Trace {
	var t Trace
	for _, tok := range strings.Fields(s) {
		tok = trimQuotes(tok)
		key, val, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}
		val = trimQuotes(val)
		switch key {
		case "loc":
			t.Loc = val
		case "colo":
			t.Colo = val
		}
	}
	return t
}

func trimQuotes(s string) string {
	return strings.Trim(s, `"'`)
}

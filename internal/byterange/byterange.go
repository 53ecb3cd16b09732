// Package byterange negotiates a single HTTP byte range against a resource size.
package byterange

import (
	"fmt"
	"strconv"
	"strings"
)

const unitPrefix = "bytes="

// Kind is the result class of a negotiation.
type Kind int

const (
	// FullBody means no Range header was sent; serve the whole resource with 200.
	FullBody Kind = iota
	// Partial means a satisfiable window; serve it with 206.
	Partial
	// Unsatisfiable means the header could not be honored; answer 416.
	Unsatisfiable
)

func (k Kind) String() string {
	switch k {
	case FullBody:
		return "full_body"
	case Partial:
		return "partial"
	case Unsatisfiable:
		return "unsatisfiable"
	default:
		return "unknown"
	}
}

// Range is an inclusive [Start, End] window of a resource of Total bytes.
// 0 <= Start <= End < Total always holds for ranges produced by Negotiate.
type Range struct {
	Start int64
	End   int64
	Total int64
}

// Length is the number of bytes in the window.
func (r Range) Length() int64 { return r.End - r.Start + 1 }

// ContentRange formats the Content-Range value of a 206 response.
func (r Range) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, r.Total)
}

// Outcome is the result of negotiating one request. Range is only meaningful for Partial.
type Outcome struct {
	Kind  Kind
	Range Range
	Total int64
}

// UnsatisfiedRange formats the Content-Range value of a 416 response.
func UnsatisfiedRange(total int64) string {
	return fmt.Sprintf("bytes */%d", total)
}

// Negotiate resolves a raw Range header value against total. An empty header is the
// absent case. Only the first range of a multi-range header is honored. A malformed
// header is never an error: it negotiates to Unsatisfiable.
func Negotiate(header string, total int64) Outcome {
	header = strings.TrimSpace(header)
	if header == "" {
		return Outcome{Kind: FullBody, Total: total}
	}
	unsatisfiable := Outcome{Kind: Unsatisfiable, Total: total}

	if !strings.HasPrefix(strings.ToLower(header), unitPrefix) {
		return unsatisfiable
	}
	set := header[len(unitPrefix):]
	if i := strings.IndexByte(set, ','); i >= 0 {
		set = set[:i]
	}
	startPart, endPart, ok := strings.Cut(set, "-")
	if !ok {
		return unsatisfiable
	}
	startPart = strings.TrimSpace(startPart)
	endPart = strings.TrimSpace(endPart)

	start, end := int64(0), total-1
	switch {
	case startPart == "" && endPart != "":
		// bytes=-N: the last N bytes.
		n, err := parseOffset(endPart)
		if err != nil || n == 0 {
			return unsatisfiable
		}
		if n < total {
			start = total - n
		}
	default:
		if startPart != "" {
			v, err := parseOffset(startPart)
			if err != nil {
				return unsatisfiable
			}
			start = v
		}
		if endPart != "" {
			v, err := parseOffset(endPart)
			if err != nil {
				return unsatisfiable
			}
			end = min(v, total-1)
		}
	}

	if start < 0 || start >= total || start > end {
		return unsatisfiable
	}
	return Outcome{Kind: Partial, Range: Range{Start: start, End: end, Total: total}, Total: total}
}

// parseOffset accepts only plain decimal digits.
func parseOffset(s string) (int64, error) {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("invalid offset %q", s)
		}
	}
	return strconv.ParseInt(s, 10, 64)
}

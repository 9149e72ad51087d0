package sqlguard

import (
	"errors"
	"fmt"

	libinjection "github.com/corazawaf/libinjection-go"
)

// ErrSuspiciousParameter is returned when a bound parameter looks like SQL
// rather than data.
var ErrSuspiciousParameter = errors.New("parameter value looks like SQL injection")

// Finding describes one parameter flagged by libinjection.
type Finding struct {
	Position    int    // 1-based, matching $1 / @p1 placeholders
	Fingerprint string // libinjection token fingerprint
}

// ScreenParams runs every string parameter through libinjection. Other
// types cannot carry injected SQL and are skipped.
func ScreenParams(params []any) []Finding {
	var findings []Finding
	for i, p := range params {
		var s string
		switch v := p.(type) {
		case string:
			s = v
		case *string:
			if v == nil {
				continue
			}
			s = *v
		default:
			continue
		}
		if isSQLi, fingerprint := libinjection.IsSQLi(s); isSQLi {
			findings = append(findings, Finding{Position: i + 1, Fingerprint: string(fingerprint)})
		}
	}
	return findings
}

// CheckParams returns ErrSuspiciousParameter naming the first flagged
// parameter, or nil when every parameter is clean.
func CheckParams(params []any) error {
	findings := ScreenParams(params)
	if len(findings) == 0 {
		return nil
	}
	f := findings[0]
	return fmt.Errorf("%w: parameter %d (fingerprint %q)", ErrSuspiciousParameter, f.Position, f.Fingerprint)
}

package requestapi

import (
	"regexp"
	"strconv"
	"time"

	"github.com/odcproject/odc/internal/odcerr"
)

var (
	secondsSuffixRe = regexp.MustCompile(`^([0-9]+)s$`)
	percentRe       = regexp.MustCompile(`^([0-9]+)%$`)
	plainSecondsRe  = regexp.MustCompile(`^([0-9]+)$`)
)

// ParseTimeString parses an operator-supplied time string into a duration.
// Three forms are accepted: a bare integer of seconds ("3600"), a seconds
// suffix ("10s"), or a percentage of baseSeconds ("50%"). Percentage forms
// require baseSeconds > 0. Anything else — empty, malformed, negative, or
// an unrecognized suffix — is rejected. This is the Go form of the
// parseTimeString testable property in spec.md §8.
func ParseTimeString(s string, baseSeconds int64) (time.Duration, error) {
	if s == "" {
		return 0, odcerr.New(odcerr.RequestNotSupported, "empty time string")
	}

	if m := secondsSuffixRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, odcerr.Newf(odcerr.RequestNotSupported, "invalid time string %q", s)
		}
		return time.Duration(n) * time.Second, nil
	}

	if m := percentRe.FindStringSubmatch(s); m != nil {
		if baseSeconds <= 0 {
			return 0, odcerr.Newf(odcerr.RequestNotSupported, "percentage time string %q needs a positive base", s)
		}
		pct, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, odcerr.Newf(odcerr.RequestNotSupported, "invalid time string %q", s)
		}
		seconds := baseSeconds * pct / 100
		return time.Duration(seconds) * time.Second, nil
	}

	if m := plainSecondsRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, odcerr.Newf(odcerr.RequestNotSupported, "invalid time string %q", s)
		}
		return time.Duration(n) * time.Second, nil
	}

	return 0, odcerr.Newf(odcerr.RequestNotSupported, "unrecognized time string %q", s)
}

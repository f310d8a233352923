// Package rules contains the parsers of network and cosmetic filtering rules
// and the request they are matched against.
package rules

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/AdguardTeam/adengine/filterutil"
	"github.com/AdguardTeam/golibs/errors"
	"golang.org/x/net/idna"
)

// RuleSyntaxError represents an error while parsing a filtering rule.
type RuleSyntaxError struct {
	err      error
	msg      string
	ruleText string
}

// type check
var _ error = (*RuleSyntaxError)(nil)

// Error implements the error interface for *RuleSyntaxError.
func (e *RuleSyntaxError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("syntax error: %s, rule: %s", e.err, e.ruleText)
	}

	return fmt.Sprintf("syntax error: %s, rule: %s", e.msg, e.ruleText)
}

// Unwrap returns the underlying error, if any.
func (e *RuleSyntaxError) Unwrap() (err error) {
	return e.err
}

// newSyntaxError wraps err into a *RuleSyntaxError unless it already is one.
func newSyntaxError(err error, ruleText string) (synErr *RuleSyntaxError) {
	if errors.As(err, &synErr) {
		return synErr
	}

	return &RuleSyntaxError{
		err:      err,
		ruleText: ruleText,
	}
}

// ErrUnsupportedRule signals that this might be a valid rule type, but it is
// not yet supported by this library.
const ErrUnsupportedRule errors.Error = "this type of rules is unsupported"

// Rule is a base interface for all filtering rules.
type Rule interface {
	// Text returns the original rule text.
	Text() string

	// GetFilterListID returns ID of the filter list this rule belongs to.
	GetFilterListID() int
}

// NewRule creates a new filtering rule from the specified line.  It returns
// nil if the line is empty or if it is a comment.
func NewRule(line string, filterListID int) (r Rule, err error) {
	line = strings.TrimSpace(line)

	if line == "" || isComment(line) {
		return nil, nil
	}

	if isCosmetic(line) {
		return NewCosmeticRule(line, filterListID)
	}

	return NewNetworkRule(line, filterListID)
}

// isComment checks if the line is a comment.
func isComment(line string) bool {
	switch line[0] {
	case '!':
		return true
	case '[':
		// "[Adblock Plus 2.0]" and similar headers.
		return strings.HasSuffix(line, "]")
	case '#':
		if len(line) == 1 {
			return true
		}

		// Now we should check that this is not a cosmetic rule.
		for _, marker := range cosmeticRulesMarkers {
			if startsAtIndexWith(line, 0, marker) {
				return false
			}
		}

		return true
	default:
		return false
	}
}

// loadDomains loads $domain modifier or cosmetic rules domains.  sep is the
// separator character: for network rules it is "|", for cosmetic it is ",".
// Internationalized names are converted to their ASCII form.
func loadDomains(domains, sep string) (permitted, restricted []string, err error) {
	if domains == "" {
		return nil, nil, errors.Error("no domains specified")
	}

	for _, d := range strings.Split(domains, sep) {
		isRestricted := strings.HasPrefix(d, "~")
		if isRestricted {
			d = d[1:]
		}

		d, err = normalizeDomain(d)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid domain specified: %s: %w", domains, err)
		}

		if isRestricted {
			restricted = append(restricted, d)
		} else {
			permitted = append(permitted, d)
		}
	}

	return permitted, restricted, nil
}

// normalizeDomain lowercases d, converts it to punycode if needed and
// validates it.  A trailing ".*" wildcard is kept as is.
func normalizeDomain(d string) (normalized string, err error) {
	d = strings.ToLower(d)

	wildcard := strings.HasSuffix(d, ".*")
	if wildcard {
		d = d[:len(d)-len(".*")]
	}

	if !isASCII(d) {
		d, err = idna.Lookup.ToASCII(d)
		if err != nil {
			return "", err
		}
	}

	switch {
	case wildcard && d != "" && !strings.HasPrefix(d, "."):
		return d + ".*", nil
	case filterutil.IsDomainName(d), filterutil.IsProbablyIP(d) && d != "":
		return d, nil
	default:
		return "", fmt.Errorf("bad domain %q", d)
	}
}

// isASCII returns true if s contains only ASCII characters.
func isASCII(s string) (ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}

	return true
}

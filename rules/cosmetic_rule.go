package rules

import (
	"slices"
	"strings"
)

// CosmeticRuleType is the enumeration of different cosmetic rules.
type CosmeticRuleType uint8

// CosmeticRuleType enumeration
const (
	// CosmeticElementHiding is a "##selector" rule.
	CosmeticElementHiding CosmeticRuleType = iota

	// CosmeticScriptlet is a "##+js(name, args...)" rule.
	CosmeticScriptlet
)

// cosmeticRuleMarker is a special marker that defines what type of cosmetic
// rule we are dealing with.
type cosmeticRuleMarker string

// cosmeticRuleMarker enumeration
const (
	markerElementHiding          cosmeticRuleMarker = "##"
	markerElementHidingException cosmeticRuleMarker = "#@#"

	// The markers below are recognized so that such lines are not parsed as
	// network rules, but they are not supported.

	markerElementHidingExtCSS          cosmeticRuleMarker = "#?#"
	markerElementHidingExtCSSException cosmeticRuleMarker = "#@?#"
	markerCSS                          cosmeticRuleMarker = "#$#"
	markerCSSException                 cosmeticRuleMarker = "#@$#"
	markerJS                           cosmeticRuleMarker = "#%#"
	markerJSException                  cosmeticRuleMarker = "#@%#"
	markerHTML                         cosmeticRuleMarker = "$$"
	markerHTMLException                cosmeticRuleMarker = "$@$"
)

// scriptletPrefix and scriptletSuffix surround the scriptlet call in the
// content of a scriptlet rule.
const (
	scriptletPrefix = "+js("
	scriptletSuffix = ")"
)

// cosmeticRulesMarkers contains all possible cosmetic rule markers, longest
// first, which is important for [findCosmeticRuleMarker].
var cosmeticRulesMarkers = func() (markers []string) {
	markers = []string{
		string(markerElementHiding), string(markerElementHidingException),
		string(markerElementHidingExtCSS), string(markerElementHidingExtCSSException),
		string(markerCSS), string(markerCSSException),
		string(markerJS), string(markerJSException),
		string(markerHTML), string(markerHTMLException),
	}

	slices.SortStableFunc(markers, func(a, b string) int { return len(b) - len(a) })

	return markers
}()

// cosmeticRuleMarkersFirstChars are the distinct first characters of the
// markers.
var cosmeticRuleMarkersFirstChars = func() (chars []byte) {
	for _, marker := range cosmeticRulesMarkers {
		if !slices.Contains(chars, marker[0]) {
			chars = append(chars, marker[0])
		}
	}

	return chars
}()

// CosmeticRule represents a cosmetic rule: an element hiding selector or a
// scriptlet call.
type CosmeticRule struct {
	// RuleText is the original rule text.
	RuleText string

	// Content is the CSS selector of an element hiding rule or the
	// normalized "name, arg1, arg2" call of a scriptlet rule.
	Content string

	permittedDomains  []string // a list of permitted domains for this rule
	restrictedDomains []string // a list of restricted domains for this rule

	// ID is the rule's storage index.  It is assigned when the rule is
	// loaded from a list.
	ID int64

	// FilterListID is the filter list identifier.
	FilterListID int

	// Type is the type of the rule.
	Type CosmeticRuleType

	// Whitelist means that this rule is meant to disable rules with the same
	// content on the specified domains.
	Whitelist bool
}

// NewCosmeticRule parses the rule text and creates a cosmetic rule.
func NewCosmeticRule(ruleText string, filterListID int) (f *CosmeticRule, err error) {
	f = &CosmeticRule{
		RuleText:     ruleText,
		FilterListID: filterListID,
	}

	index, m := findCosmeticRuleMarker(ruleText)
	if index == -1 {
		return nil, &RuleSyntaxError{msg: "cannot find cosmetic marker", ruleText: ruleText}
	}

	switch cosmeticRuleMarker(m) {
	case markerElementHiding:
		// Go on.
	case markerElementHidingException:
		f.Whitelist = true
	default:
		return nil, ErrUnsupportedRule
	}

	if index > 0 {
		// This means that the marker is preceded by the list of domains.
		// Now it's a good time to parse them.
		f.permittedDomains, f.restrictedDomains, err = loadDomains(ruleText[:index], ",")
		if err != nil {
			return nil, &RuleSyntaxError{err: err, ruleText: ruleText}
		}
	}

	content := strings.TrimSpace(ruleText[index+len(m):])
	if content == "" {
		return nil, &RuleSyntaxError{msg: "empty rule content", ruleText: ruleText}
	}

	if strings.HasPrefix(content, scriptletPrefix) {
		s, sErr := ParseScriptlet(content)
		if sErr != nil {
			return nil, &RuleSyntaxError{err: sErr, ruleText: ruleText}
		}

		f.Type = CosmeticScriptlet
		f.Content = s.String()
	} else {
		if !isValidSelector(content) {
			return nil, &RuleSyntaxError{msg: "invalid selector", ruleText: ruleText}
		}

		f.Type = CosmeticElementHiding
		f.Content = content
	}

	if f.Whitelist && len(f.permittedDomains) == 0 {
		return nil, &RuleSyntaxError{
			msg:      "whitelist rule must have at least one domain specified",
			ruleText: ruleText,
		}
	}

	return f, nil
}

// isValidSelector performs a cheap sanity check of a CSS selector: it must
// not contain braces, which could be used to inject style declarations, and
// its brackets and parentheses must be balanced.
func isValidSelector(s string) (ok bool) {
	if strings.ContainsAny(s, "{}") {
		return false
	}

	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
			if depth < 0 {
				return false
			}
		}
	}

	return depth == 0
}

// Text returns the original rule text.  Implements the [Rule] interface.
func (f *CosmeticRule) Text() string {
	return f.RuleText
}

// GetFilterListID returns ID of the filter list this rule belongs to.
func (f *CosmeticRule) GetFilterListID() int {
	return f.FilterListID
}

// String returns original rule text.
func (f *CosmeticRule) String() string {
	return f.RuleText
}

// IsGeneric returns true if rule can be considered generic (is not limited to
// a specific domain).
func (f *CosmeticRule) IsGeneric() bool {
	return len(f.permittedDomains) == 0
}

// GetPermittedDomains returns the domains this rule is limited to.
func (f *CosmeticRule) GetPermittedDomains() []string {
	return f.permittedDomains
}

// Match returns true if this rule can be used on the specified hostname.
func (f *CosmeticRule) Match(hostname string) bool {
	if len(f.restrictedDomains) > 0 && isDomainOrSubdomainOfAny(hostname, f.restrictedDomains) {
		// Domain or host is restricted, i.e. ~example.org##.banner.
		return false
	}

	if len(f.permittedDomains) > 0 && !isDomainOrSubdomainOfAny(hostname, f.permittedDomains) {
		// Domain is not among permitted, i.e. example.org##.banner and
		// we're checking example.com.
		return false
	}

	return true
}

// ClassIDKey returns the ".class" or "#id" token the selector of an element
// hiding rule starts with, or "" if it starts with something else.  Generic
// rules with such a key are only applied to pages that have the class or id.
func (f *CosmeticRule) ClassIDKey() (key string) {
	if f.Type != CosmeticElementHiding {
		return ""
	}

	return selectorKey(f.Content)
}

// selectorKey returns the leading ".class" or "#id" token of selector.
func selectorKey(selector string) (key string) {
	if len(selector) < 2 || (selector[0] != '.' && selector[0] != '#') {
		return ""
	}

	i := 1
	for i < len(selector) && isIdentChar(selector[i]) {
		i++
	}

	if i == 1 {
		return ""
	}

	return selector[:i]
}

// isIdentChar returns true if c can be a part of a CSS identifier.  Escapes
// are not supported.
func isIdentChar(c byte) (ok bool) {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c >= 0x80
}

// isCosmetic checks if this is a cosmetic filtering rule.
func isCosmetic(line string) bool {
	index, _ := findCosmeticRuleMarker(line)

	return index != -1
}

// findCosmeticRuleMarker looks for a cosmetic rule marker in the rule text and
// returns the start index and the marker found.  If nothing found, it returns
// -1.
func findCosmeticRuleMarker(ruleText string) (int, string) {
	for _, firstMarkerChar := range cosmeticRuleMarkersFirstChars {
		startIndex := strings.IndexByte(ruleText, firstMarkerChar)
		if startIndex == -1 {
			continue
		}

		// Handling false positives while looking for cosmetic rules in host
		// files.
		//
		// For instance, it could look like this:
		// 0.0.0.0 jackbootedroom.com  ## phishing
		if startIndex > 0 && ruleText[startIndex-1] == ' ' {
			continue
		}

		for _, marker := range cosmeticRulesMarkers {
			if startsAtIndexWith(ruleText, startIndex, marker) {
				return startIndex, marker
			}
		}
	}

	return -1, ""
}

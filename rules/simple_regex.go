package rules

import (
	"regexp"
	"strings"
)

// Basic rule pattern syntax.
const (
	// MaskStartURL should be used at the beginning of the pattern.  It
	// matches the beginning of the domain name or any of its subdomains.
	MaskStartURL = "||"

	// MaskPipe marks the beginning or the end of the address.
	MaskPipe = "|"

	// MaskSeparator matches any character except letters, digits and "_-.%"
	// and the end of the address.
	MaskSeparator = "^"

	// MaskAnyCharacter is a wildcard that matches any set of characters.
	MaskAnyCharacter = "*"

	// RegexAnyCharacter corresponds to [MaskAnyCharacter].
	RegexAnyCharacter = ".*"

	// RegexSeparator corresponds to [MaskSeparator].
	RegexSeparator = "([^ a-zA-Z0-9.%_-]|$)"

	// RegexStartURL corresponds to [MaskStartURL].
	RegexStartURL = "^(http|https|ws|wss)://([a-z0-9-_.]+\\.)?"

	// RegexStartString corresponds to a leading [MaskPipe].
	RegexStartString = "^"

	// RegexEndString corresponds to a trailing [MaskPipe].
	RegexEndString = "$"
)

// reSpecialCharacters matches the characters that have to be escaped when a
// basic pattern is turned into a regular expression.  Note that "*" and "^"
// are not here since they are pattern syntax.
var reSpecialCharacters = regexp.MustCompile(`[.+?${}()\[\]/\\|]`)

// patternToRegexp converts a basic rule pattern to a regular expression.
func patternToRegexp(pattern string) (re string) {
	if pattern == MaskStartURL ||
		pattern == MaskPipe ||
		pattern == MaskAnyCharacter ||
		pattern == "" {
		return RegexAnyCharacter
	}

	if isRegexPattern(pattern) {
		return pattern[len(maskRegexRule) : len(pattern)-len(maskRegexRule)]
	}

	var prefix, suffix string
	if strings.HasPrefix(pattern, MaskStartURL) {
		prefix, pattern = RegexStartURL, pattern[len(MaskStartURL):]
	} else if strings.HasPrefix(pattern, MaskPipe) {
		prefix, pattern = RegexStartString, pattern[len(MaskPipe):]
	}

	if strings.HasSuffix(pattern, MaskPipe) {
		suffix, pattern = RegexEndString, pattern[:len(pattern)-len(MaskPipe)]
	}

	re = reSpecialCharacters.ReplaceAllString(pattern, `\$0`)
	re = strings.ReplaceAll(re, MaskAnyCharacter, RegexAnyCharacter)
	re = strings.ReplaceAll(re, MaskSeparator, RegexSeparator)

	return prefix + re + suffix
}

// isRegexPattern returns true if pattern is a "/regex/" pattern.
func isRegexPattern(pattern string) (ok bool) {
	return len(pattern) > len(maskRegexRule) &&
		strings.HasPrefix(pattern, maskRegexRule) &&
		strings.HasSuffix(pattern, maskRegexRule)
}

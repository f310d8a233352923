// Package filterutil contains helper functions shared by the rule parser, the
// lookup tables and the engines.
package filterutil

import "strings"

// ExtractHostname quickly retrieves hostname from the given URL.
//
// NOTE: ExtractHostname is an optimized, best-effort function to retrieve a
// hostname from a URL-like string.  The result is not guaranteed to be correct
// for some edge cases, which include non-hierarchical URLs and IPv6 hostnames.
func ExtractHostname(url string) (hostname string) {
	firstIdx := strings.Index(url, "//")
	if firstIdx == -1 {
		// This is a non-hierarchical structured URL (e.g. stun: or turn:)
		// https://tools.ietf.org/html/rfc4395#section-2.2
		// https://datatracker.ietf.org/doc/html/rfc7064#appendix-B
		firstIdx = strings.Index(url, ":")
		if firstIdx == -1 {
			return ""
		}

		firstIdx = firstIdx - 1
	} else {
		firstIdx = firstIdx + 2
	}

	if firstIdx < 0 {
		return ""
	}

	nextIdx := strings.IndexAny(url[firstIdx:], "/:?#")
	if nextIdx == -1 {
		nextIdx = len(url)
	} else {
		nextIdx += firstIdx
	}

	if nextIdx <= firstIdx {
		return ""
	}

	return url[firstIdx:nextIdx]
}

// Subdomains returns hostname and all its parent domains, starting from the
// top-level one.  For "a.b.example.org" it returns "org", "example.org",
// "b.example.org", "a.b.example.org".
func Subdomains(hostname string) (subdomains []string) {
	if hostname == "" {
		return nil
	}

	for i := len(hostname) - 1; i >= 0; i-- {
		if hostname[i] == '.' {
			subdomains = append(subdomains, hostname[i+1:])
		}
	}

	return append(subdomains, hostname)
}

// ReverseLabels reverses the order of the labels of a domain name so that
// "ads.example.com" becomes "com.example.ads".  Reversed names let a prefix
// tree answer "is this host a subdomain of" questions.
func ReverseLabels(domain string) (reversed string) {
	if strings.IndexByte(domain, '.') == -1 {
		return domain
	}

	labels := strings.Split(domain, ".")
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}

	return strings.Join(labels, ".")
}

// IsDomainName - check if input string is a valid domain name
// Syntax: [label.]... label.label
//
// Each label is 1 to 63 characters long, and may contain:
//
//	. ASCII letters a-z and A-Z
//	. digits 0-9
//	. hyphen ('-')
//
// . labels cannot start or end with hyphens (RFC 952)
// . max length of ascii hostname including dots is 253 characters
// . TLD is >=2 characters
// . TLD is [a-zA-Z]+ or "xn--[a-zA-Z0-9]+"
//
//nolint:gocyclo
func IsDomainName(name string) (ok bool) {
	if len(name) > 253 {
		return false
	}

	st := 0
	nLabel := 0
	var prevChar byte
	charOnly := true
	xn := 0

	for _, c := range []byte(name) {
		switch st {
		case 0:
			if !((c >= 'a' && c <= 'z') ||
				(c >= 'A' && c <= 'Z')) {
				charOnly = false

				if !(c >= '0' && c <= '9') {
					return false
				}
			} else if c == 'x' || c == 'X' {
				xn = 1
			}
			st = 1
			nLabel = 1

		case 1:
			if c == '.' {
				if prevChar == '-' {
					return false
				}

				st = 0
				charOnly = true
				xn = 0

				continue
			}

			if nLabel == 63 {
				return false
			}

			if !((c >= 'a' && c <= 'z') ||
				(c >= 'A' && c <= 'Z')) {
				charOnly = false
				if !((c >= '0' && c <= '9') ||
					c == '-') {
					return false
				}
			}

			if xn > 0 {
				if xn < len("xn--") {
					if c == "xn--"[xn] {
						xn++
					} else {
						xn = 0
					}
				} else {
					xn++
				}
			}

			prevChar = c
			nLabel++
		}
	}

	if st != 1 ||
		nLabel == 1 ||
		(!charOnly && xn < len("xn--wwww")) {
		return false
	}

	return true
}

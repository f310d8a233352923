package filterutil

// IsProbablyIP returns true if s looks like an IPv4 or IPv6 address, possibly
// in brackets.  Registrable domains and $domain values use it to skip the
// public suffix lookup for addresses without parsing them.
func IsProbablyIP(s string) (ok bool) {
	if len(s) < len("::") {
		return false
	}

	for i := 0; i < len(s); i++ {
		if !isAddrByte(s[i]) {
			return false
		}
	}

	return true
}

// isAddrByte returns true if c can be a part of the text form of an IP
// address.
func isAddrByte(c byte) (ok bool) {
	switch {
	case c == '.', c == ':', c == '[', c == ']':
		return true
	case c >= '0' && c <= '9':
		return true
	default:
		c |= 0x20

		return c >= 'a' && c <= 'f'
	}
}

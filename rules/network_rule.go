package rules

import (
	"fmt"
	"math/bits"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
)

const (
	maskWhiteList    = "@@"
	maskRegexRule    = "/"
	optionsDelimiter = '$'
	escapeCharacter  = '\\'
)

// ErrTooWideRule is returned if the rule matches all urls but has no domain
// or tag restrictions.
const ErrTooWideRule errors.Error = "the rule is too wide, add domain or tag " +
	"restrictions or make it more specific"

var (
	reRegexpBrackets1         = regexp.MustCompile(`([^\\])\(.*[^\\]\)`)
	reRegexpBrackets2         = regexp.MustCompile(`([^\\])\{.*[^\\]\}`)
	reRegexpBrackets3         = regexp.MustCompile(`([^\\])\[.*[^\\]\]`)
	reRegexpEscapedCharacters = regexp.MustCompile(`([^\\])\[a-zA-Z]`)
	reRegexpSpecialCharacters = regexp.MustCompile(`[\\^$*+?.()|[\]{}]`)

	// reRegexpOptionalCharacter matches a character followed by a quantifier
	// that allows it to be absent.  Groups are stripped as a whole, so their
	// closing brackets are excluded.
	reRegexpOptionalCharacter = regexp.MustCompile(`[^\\)\]}][*{]`)
)

// NetworkRuleOption is the enumeration of various rule options.  In order to
// save memory, we store some options as a flag.
type NetworkRuleOption uint64

// NetworkRuleOption enumeration
const (
	OptionThirdParty NetworkRuleOption = 1 << iota // $third-party modifier
	OptionMatchCase                                // $match-case modifier
	OptionImportant                                // $important modifier
	OptionBadfilter                                // $badfilter modifier

	// Whitelist rules modifiers.  Each of them can disable part of the
	// functionality.

	OptionElemhide    // $elemhide modifier
	OptionGenerichide // $generichide modifier
	OptionDocument    // $document modifier of an exception rule

	OptionCsp          // $csp modifier
	OptionRedirect     // $redirect modifier
	OptionRedirectRule // $redirect-rule modifier
	OptionRemoveparam  // $removeparam modifier

	// OptionWhitelistOnly are the options that only make sense in exception
	// rules.
	OptionWhitelistOnly = OptionElemhide | OptionGenerichide | OptionDocument

	// optionNonBlocking are the options of rules that modify the response
	// instead of blocking or unblocking the request.
	optionNonBlocking = OptionCsp | OptionRedirectRule | OptionRemoveparam

	// OptionBlacklistOnly are the options that only make sense in blocking
	// rules.
	OptionBlacklistOnly = OptionRedirect
)

// Count returns the count of enabled options.
func (o NetworkRuleOption) Count() int {
	return bits.OnesCount64(uint64(o))
}

// RegexpCompiler returns compiled regular expressions for rule patterns.  id
// is the rule's storage index, implementations may use it to cache the
// result.
type RegexpCompiler interface {
	Compile(id int64, expr string) (re *regexp.Regexp, err error)
}

// NetworkRule is a basic filtering rule.
type NetworkRule struct {
	// RuleText is the original rule text.
	RuleText string

	// Shortcut is the longest substring of the rule pattern with no special
	// characters, in lower case.
	Shortcut string

	// Tag is the value of the $tag modifier.  The rule is only active while
	// the tag is enabled.
	Tag string

	// CSP is the value of the $csp modifier.  An empty value in an
	// exception rule disables all policies.
	CSP string

	// Redirect is the name of the resource from the $redirect or
	// $redirect-rule modifier.
	Redirect string

	// RemoveParam is the value of the $removeparam modifier.
	RemoveParam string

	permittedDomains  []string // a list of permitted domains from the $domain modifier
	restrictedDomains []string // a list of restricted domains from the $domain modifier

	// pattern is the basic rule pattern ready to be compiled to regex.
	pattern string

	// regexSource is the regular expression the pattern compiles to.  It is
	// empty when the pattern can be matched without one.
	regexSource string

	// hostAnchor is the hostname of a "||hostname^" pattern, which is
	// matched by comparing hostnames.
	hostAnchor string

	// removeParamRe is the compiled "/regex/" value of $removeparam.
	removeParamRe *regexp.Regexp

	// ID is the rule's storage index.  It is assigned when the rule is
	// loaded from a list.
	ID int64

	// FilterListID is the filter list identifier.
	FilterListID int

	enabledOptions  NetworkRuleOption // Flag with all enabled rule options
	disabledOptions NetworkRuleOption // Flag with all disabled rule options

	permittedRequestTypes  RequestType // Flag with all permitted request types. 0 means ALL.
	restrictedRequestTypes RequestType // Flag with all restricted request types. 0 means NONE.

	// Whitelist is true if this is an exception rule.
	Whitelist bool

	// plain is true when the pattern is a literal substring.
	plain bool
}

// NewNetworkRule parses the rule text and returns a filter rule.
func NewNetworkRule(ruleText string, filterListID int) (r *NetworkRule, err error) {
	pattern, options, whitelist, err := parseRuleText(ruleText)
	if err != nil {
		return nil, newSyntaxError(err, ruleText)
	}

	r = &NetworkRule{
		RuleText:     ruleText,
		Whitelist:    whitelist,
		FilterListID: filterListID,
		pattern:      pattern,
	}

	err = r.loadOptions(options)
	if err != nil {
		return nil, newSyntaxError(err, ruleText)
	}

	// example.org/* -> example.org^
	if strings.HasSuffix(r.pattern, "/*") {
		r.pattern = r.pattern[:len(r.pattern)-len("/*")] + "^"
	}

	if r.isTooWide() {
		return nil, newSyntaxError(ErrTooWideRule, ruleText)
	}

	r.finalize()

	return r, nil
}

// isTooWide returns true if the rule matches too much and does not have any
// restrictions.  We should not allow this kind of rules.
func (f *NetworkRule) isTooWide() (ok bool) {
	p := f.pattern
	if p != MaskStartURL && p != MaskPipe && p != MaskAnyCharacter && p != "" && len(p) >= 3 {
		return false
	}

	return len(f.permittedDomains) == 0 &&
		f.Tag == "" &&
		!f.IsOptionEnabled(OptionCsp) &&
		!f.IsOptionEnabled(OptionRemoveparam)
}

// finalize computes the fields derived from the pattern and the options.  It
// is also used when a rule is decoded from a snapshot.
func (f *NetworkRule) finalize() {
	f.loadShortcut()

	f.hostAnchor = ""
	f.plain = false
	f.regexSource = ""

	if host, ok := strings.CutPrefix(f.pattern, MaskStartURL); ok {
		if host, ok = strings.CutSuffix(host, MaskSeparator); ok && isHostnameLiteral(host) {
			f.hostAnchor = strings.ToLower(host)

			return
		}
	}

	if f.pattern != "" && !isRegexPattern(f.pattern) && !strings.ContainsAny(f.pattern, "*^|") {
		f.plain = true

		return
	}

	re := patternToRegexp(f.pattern)
	if re == RegexAnyCharacter {
		return
	}

	if !f.IsOptionEnabled(OptionMatchCase) {
		re = "(?i)" + re
	}

	f.regexSource = re
}

// isHostnameLiteral returns true if s only consists of hostname characters.
func isHostnameLiteral(s string) (ok bool) {
	if s == "" || s[0] == '.' || s[len(s)-1] == '.' {
		return false
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case
			c >= 'a' && c <= 'z',
			c >= 'A' && c <= 'Z',
			c >= '0' && c <= '9',
			c == '.', c == '-', c == '_':
			// Go on.
		default:
			return false
		}
	}

	return true
}

// Text returns the original rule text.  Implements the [Rule] interface.
func (f *NetworkRule) Text() string {
	return f.RuleText
}

// GetFilterListID returns ID of the filter list this rule belongs to.
func (f *NetworkRule) GetFilterListID() int {
	return f.FilterListID
}

// String returns original rule text.
func (f *NetworkRule) String() string {
	return f.RuleText
}

// Match checks if this filtering rule matches the specified request.  rx is
// used to obtain the compiled pattern, if it is nil the pattern is compiled
// on every call.
func (f *NetworkRule) Match(r *Request, rx RegexpCompiler) (ok bool) {
	switch {
	case
		!f.matchTag(r.Tags),
		!f.matchShortcut(r),
		f.IsOptionEnabled(OptionThirdParty) && !r.ThirdParty,
		f.IsOptionDisabled(OptionThirdParty) && r.ThirdParty,
		!f.matchRequestType(r.RequestType),
		!f.matchSourceDomain(r.SourceHostname),
		!f.matchPattern(r, rx):
		return false
	}

	return true
}

// IsOptionEnabled returns true if the specified option is enabled.
func (f *NetworkRule) IsOptionEnabled(option NetworkRuleOption) bool {
	return (f.enabledOptions & option) == option
}

// IsOptionDisabled returns true if the specified option is disabled.
func (f *NetworkRule) IsOptionDisabled(option NetworkRuleOption) bool {
	return (f.disabledOptions & option) == option
}

// GetPermittedDomains returns the domains this rule is allowed on.
func (f *NetworkRule) GetPermittedDomains() []string {
	return f.permittedDomains
}

// HostAnchor returns the hostname the rule is anchored to.  A rule is
// anchored to a hostname when its pattern starts with "||hostname" followed
// by a separator, so that it can only match requests to that hostname or its
// subdomains.  It returns "" for other rules.
func (f *NetworkRule) HostAnchor() (host string) {
	if f.hostAnchor != "" {
		return f.hostAnchor
	}

	rest, ok := strings.CutPrefix(f.pattern, MaskStartURL)
	if !ok {
		return ""
	}

	i := strings.IndexAny(rest, "^/:|")
	if i <= 0 || !isHostnameLiteral(rest[:i]) {
		return ""
	}

	return strings.ToLower(rest[:i])
}

// RegexSource returns the regular expression the rule needs to match URLs or
// "" if it does not need one.
func (f *NetworkRule) RegexSource() (expr string) {
	return f.regexSource
}

// IsRegexRule returns true if rule's pattern is a regular expression.
func (f *NetworkRule) IsRegexRule() bool {
	return isRegexPattern(f.pattern)
}

// IsGeneric returns true if the rule is considered "generic".  "generic"
// means that the rule is not restricted to a limited set of domains.  Please
// note that it might be forbidden on some domains, though.
func (f *NetworkRule) IsGeneric() bool {
	return len(f.permittedDomains) == 0
}

// IsImportant returns true if the rule has the $important modifier.
func (f *NetworkRule) IsImportant() (ok bool) {
	return f.IsOptionEnabled(OptionImportant)
}

// IsDocumentWhitelistRule returns true if the rule is an exception that
// disables cosmetic filtering on the page, either completely ($elemhide,
// $document) or for generic rules only ($generichide).
func (f *NetworkRule) IsDocumentWhitelistRule() (ok bool) {
	return f.Whitelist && f.enabledOptions&(OptionElemhide|OptionGenerichide|OptionDocument) != 0
}

// IsBlocking returns true if the rule blocks the requests it matches.  Rules
// with $csp, $redirect-rule or $removeparam only modify the request.
func (f *NetworkRule) IsBlocking() (ok bool) {
	return !f.Whitelist && f.enabledOptions&(optionNonBlocking|OptionBadfilter) == 0
}

// IsBlockingException returns true if the rule unblocks the requests it
// matches.  Exceptions for modifiers and cosmetic filtering do not.
func (f *NetworkRule) IsBlockingException() (ok bool) {
	const cosmeticOnly = OptionElemhide | OptionGenerichide

	return f.Whitelist && f.enabledOptions&(optionNonBlocking|OptionBadfilter|cosmeticOnly) == 0
}

// IsHigherPriority checks if the rule has higher priority that the specified
// rule.  whitelist + $important > $important > whitelist > basic rules.
//
//nolint:gocyclo
func (f *NetworkRule) IsHigherPriority(r *NetworkRule) bool {
	important := f.IsOptionEnabled(OptionImportant)
	rImportant := r.IsOptionEnabled(OptionImportant)

	switch {
	case (f.Whitelist && important) && !(r.Whitelist && rImportant):
		return true
	case (r.Whitelist && rImportant) && !(f.Whitelist && important):
		return false
	case important && !rImportant:
		return true
	case rImportant && !important:
		return false
	case f.Whitelist && !r.Whitelist:
		return true
	case r.Whitelist && !f.Whitelist:
		return false
	}

	redirect := f.IsOptionEnabled(OptionRedirect)
	rRedirect := r.IsOptionEnabled(OptionRedirect)
	if redirect && !rRedirect {
		// $redirect rules have "slightly" higher priority than regular
		// basic rules.
		return true
	}

	generic := f.IsGeneric()
	rGeneric := r.IsGeneric()
	if !generic && rGeneric {
		// Specific rules have priority over generic rules.
		return true
	}

	// More specific rules (i.e. with more modifiers) have higher priority.
	return f.specificity() > r.specificity()
}

// specificity returns the number of modifiers of the rule.
func (f *NetworkRule) specificity() (n int) {
	n = f.enabledOptions.Count() + f.disabledOptions.Count() +
		f.permittedRequestTypes.Count() + f.restrictedRequestTypes.Count()
	if len(f.permittedDomains) != 0 || len(f.restrictedDomains) != 0 {
		n++
	}

	if f.Tag != "" {
		n++
	}

	return n
}

// NegatesBadfilter only makes sense when the "f" rule has a `badfilter`
// modifier.  It returns true if the "f" rule negates the specified "r" rule.
func (f *NetworkRule) NegatesBadfilter(r *NetworkRule) bool {
	switch {
	case
		!f.IsOptionEnabled(OptionBadfilter),
		f.Whitelist != r.Whitelist,
		f.pattern != r.pattern,
		f.permittedRequestTypes != r.permittedRequestTypes,
		f.restrictedRequestTypes != r.restrictedRequestTypes,
		(f.enabledOptions ^ OptionBadfilter) != r.enabledOptions,
		f.disabledOptions != r.disabledOptions,
		f.Tag != r.Tag,
		f.CSP != r.CSP,
		f.Redirect != r.Redirect,
		f.RemoveParam != r.RemoveParam,
		!slices.Equal(f.permittedDomains, r.permittedDomains),
		!slices.Equal(f.restrictedDomains, r.restrictedDomains):
		return false
	}

	return true
}

// RewriteURL applies the $removeparam modifier to u.  ok is false if the rule
// has no such modifier or u has nothing to remove.
func (f *NetworkRule) RewriteURL(u string) (rewritten string, ok bool) {
	if !f.IsOptionEnabled(OptionRemoveparam) {
		return "", false
	}

	parsed, err := url.Parse(u)
	if err != nil || parsed.RawQuery == "" {
		return "", false
	}

	query := parsed.Query()
	removed := false
	for name := range query {
		if f.shouldRemoveParam(name) {
			query.Del(name)
			removed = true
		}
	}

	if !removed {
		return "", false
	}

	parsed.RawQuery = query.Encode()

	return parsed.String(), true
}

// shouldRemoveParam returns true if the query parameter should be removed.
func (f *NetworkRule) shouldRemoveParam(name string) (ok bool) {
	v := f.RemoveParam
	switch {
	case v == "":
		return true
	case f.removeParamRe != nil:
		// Some lists use a trailing "=" in the expression to anchor the
		// name, so check for that form as well.
		return f.removeParamRe.MatchString(name) || f.removeParamRe.MatchString(name+"=")
	case strings.HasPrefix(v, "~"):
		return name != v[1:]
	default:
		return name == v
	}
}

// matchTag returns true if the rule has no tag or its tag is enabled.
func (f *NetworkRule) matchTag(tags map[string]struct{}) (ok bool) {
	if f.Tag == "" {
		return true
	}

	_, ok = tags[f.Tag]

	return ok
}

// matchPattern matches the request URL against the rule pattern.
func (f *NetworkRule) matchPattern(r *Request, rx RegexpCompiler) (ok bool) {
	switch {
	case f.hostAnchor != "":
		return hasWebScheme(r.URLLowerCase) &&
			(r.Hostname == f.hostAnchor || strings.HasSuffix(r.Hostname, "."+f.hostAnchor))
	case f.plain:
		if f.IsOptionEnabled(OptionMatchCase) {
			return strings.Contains(r.URL, f.pattern)
		}

		// The shortcut of a plain pattern is the lowercased pattern itself
		// and it has already been checked.
		return len(f.Shortcut) == len(f.pattern) ||
			strings.Contains(r.URLLowerCase, strings.ToLower(f.pattern))
	case f.regexSource == "":
		return true
	}

	var re *regexp.Regexp
	var err error
	if rx != nil {
		re, err = rx.Compile(f.ID, f.regexSource)
	} else {
		re, err = regexp.Compile(f.regexSource)
	}

	if err != nil {
		// Invalid patterns never match.
		return false
	}

	return re.MatchString(r.URL)
}

// hasWebScheme returns true if the lowercased URL has one of the schemes
// [MaskStartURL] matches.
func hasWebScheme(u string) (ok bool) {
	return strings.HasPrefix(u, "https://") ||
		strings.HasPrefix(u, "http://") ||
		strings.HasPrefix(u, "wss://") ||
		strings.HasPrefix(u, "ws://")
}

// matchShortcut simply checks if shortcut is a substring of the URL.
func (f *NetworkRule) matchShortcut(r *Request) bool {
	return strings.Contains(r.URLLowerCase, f.Shortcut)
}

// matchSourceDomain checks if the specified filtering rule is allowed on this
// domain e.g. it checks the domain against what's specified in the $domain
// modifier.
func (f *NetworkRule) matchSourceDomain(domain string) bool {
	if len(f.permittedDomains) == 0 && len(f.restrictedDomains) == 0 {
		return true
	}

	if len(f.restrictedDomains) > 0 && isDomainOrSubdomainOfAny(domain, f.restrictedDomains) {
		// Domain or host is restricted, i.e. $domain=~example.org.
		return false
	}

	if len(f.permittedDomains) > 0 && !isDomainOrSubdomainOfAny(domain, f.permittedDomains) {
		// Domain is not among permitted, i.e. $domain=example.org and we're
		// checking example.com.
		return false
	}

	return true
}

// matchRequestType checks if the specified request type matches the rule
// properties.  Untyped requests only match rules without type restrictions.
func (f *NetworkRule) matchRequestType(requestType RequestType) bool {
	if requestType == 0 {
		return f.permittedRequestTypes == 0 && f.restrictedRequestTypes == 0
	}

	if f.permittedRequestTypes != 0 && (f.permittedRequestTypes&requestType) != requestType {
		return false
	}

	if f.restrictedRequestTypes != 0 && (f.restrictedRequestTypes&requestType) == requestType {
		return false
	}

	return true
}

// setRequestType permits or forbids the specified request type.
func (f *NetworkRule) setRequestType(requestType RequestType, permitted bool) {
	if permitted {
		f.permittedRequestTypes |= requestType
	} else {
		f.restrictedRequestTypes |= requestType
	}
}

// setOptionEnabled enables or disables the specified option.  It can return
// error if this option cannot be used with this type of rules.
func (f *NetworkRule) setOptionEnabled(option NetworkRuleOption, enabled bool) error {
	if f.Whitelist && (option&OptionBlacklistOnly) == option {
		return fmt.Errorf("modifier cannot be used in a whitelist rule: %v", option)
	}

	if !f.Whitelist && (option&OptionWhitelistOnly) == option {
		return fmt.Errorf("modifier cannot be used in a blacklist rule: %v", option)
	}

	if enabled {
		f.enabledOptions |= option
	} else {
		f.disabledOptions |= option
	}

	return nil
}

// loadOptions loads all the filtering rule options.
func (f *NetworkRule) loadOptions(options string) error {
	if options == "" {
		return nil
	}

	for _, option := range splitWithEscapeCharacter(options, ',', escapeCharacter, false) {
		optionName, optionValue, _ := strings.Cut(strings.TrimSpace(option), "=")

		err := f.loadOption(optionName, optionValue)
		if err != nil {
			return err
		}
	}

	// Rules of these types can be applied to documents only.
	if f.IsOptionEnabled(OptionElemhide) || f.IsOptionEnabled(OptionGenerichide) {
		f.permittedRequestTypes = TypeDocument
	}

	return nil
}

// requestTypeOptions maps the request type modifiers, including the
// resource type aliases, to the request types.
var requestTypeOptions = map[string]RequestType{
	"document":       TypeDocument,
	"doc":            TypeDocument,
	"main_frame":     TypeDocument,
	"subdocument":    TypeSubdocument,
	"sub_frame":      TypeSubdocument,
	"frame":          TypeSubdocument,
	"script":         TypeScript,
	"stylesheet":     TypeStylesheet,
	"css":            TypeStylesheet,
	"object":         TypeObject,
	"image":          TypeImage,
	"xmlhttprequest": TypeXmlhttprequest,
	"xhr":            TypeXmlhttprequest,
	"media":          TypeMedia,
	"font":           TypeFont,
	"websocket":      TypeWebsocket,
	"ping":           TypePing,
	"beacon":         TypePing,
	"other":          TypeOther,
}

// loadOption loads specified option with its value (optional).  Unknown
// options are ignored.
//
//nolint:gocyclo
func (f *NetworkRule) loadOption(name, value string) (err error) {
	switch name {
	case "third-party", "~first-party", "3p", "~1p":
		return f.setOptionEnabled(OptionThirdParty, true)
	case "~third-party", "first-party", "~3p", "1p":
		return f.setOptionEnabled(OptionThirdParty, false)
	case "match-case":
		return f.setOptionEnabled(OptionMatchCase, true)
	case "~match-case":
		return f.setOptionEnabled(OptionMatchCase, false)
	case "important":
		return f.setOptionEnabled(OptionImportant, true)
	case "badfilter":
		return f.setOptionEnabled(OptionBadfilter, true)
	case "domain", "from":
		f.permittedDomains, f.restrictedDomains, err = loadDomains(value, "|")

		return err
	case "tag":
		return f.loadTag(value)
	case "elemhide", "ehide":
		return f.setOptionEnabled(OptionElemhide, true)
	case "generichide", "ghide":
		return f.setOptionEnabled(OptionGenerichide, true)
	case "csp":
		if value == "" && !f.Whitelist {
			return errors.Error("empty $csp value")
		}

		f.CSP = value

		return f.setOptionEnabled(OptionCsp, true)
	case "redirect", "redirect-rule":
		return f.loadRedirect(name, value)
	case "removeparam":
		return f.loadRemoveParam(value)
	}

	if name == "document" && f.Whitelist {
		// An exception for the whole page also disables cosmetic filtering.
		f.enabledOptions |= OptionDocument
	}

	negated := strings.HasPrefix(name, "~")
	if t, ok := requestTypeOptions[strings.TrimPrefix(name, "~")]; ok {
		f.setRequestType(t, !negated)
	}

	return nil
}

// loadTag loads the $tag modifier value.
func (f *NetworkRule) loadTag(value string) (err error) {
	if value == "" || strings.ContainsAny(value, " |") {
		return fmt.Errorf("invalid $tag value %q", value)
	}

	f.Tag = value

	return nil
}

// loadRedirect loads the $redirect and $redirect-rule modifiers.  The
// optional ":priority" suffix of the resource name is dropped.
func (f *NetworkRule) loadRedirect(name, value string) (err error) {
	if i := strings.LastIndexByte(value, ':'); i > 0 {
		value = value[:i]
	}

	if value == "" {
		if !f.Whitelist {
			return fmt.Errorf("empty $%s value", name)
		}

		// "@@...$redirect-rule" without a resource disables all redirects.
		f.enabledOptions |= OptionRedirectRule

		return nil
	}

	f.Redirect = value
	if name == "redirect-rule" {
		f.enabledOptions |= OptionRedirectRule

		return nil
	}

	if f.Whitelist {
		// "@@...$redirect" cancels redirects, which the matcher handles as
		// a $redirect-rule exception.
		f.enabledOptions |= OptionRedirectRule

		return nil
	}

	return f.setOptionEnabled(OptionRedirect, true)
}

// loadRemoveParam loads the $removeparam modifier value.  An empty value
// removes all parameters, "~name" removes all parameters except name and
// "/regex/" removes the matching ones.
func (f *NetworkRule) loadRemoveParam(value string) (err error) {
	f.removeParamRe, err = compileRemoveParam(value)
	if err != nil {
		return fmt.Errorf("invalid $removeparam value: %w", err)
	}

	f.RemoveParam = value
	f.enabledOptions |= OptionRemoveparam

	return nil
}

// compileRemoveParam compiles the regular expression of a "/regex/"
// $removeparam value.  It returns nil for other values.
func compileRemoveParam(value string) (re *regexp.Regexp, err error) {
	if !isRegexPattern(value) {
		return nil, nil
	}

	expr := value[1 : len(value)-1]

	return regexp.Compile(expr)
}

// loadShortcut extracts a shortcut from the pattern.  Shortcut is the longest
// substring of the pattern that does not contain any special characters.
func (f *NetworkRule) loadShortcut() {
	var shortcut string
	if f.IsRegexRule() {
		shortcut = findRegexpShortcut(f.pattern)
	} else {
		shortcut = findShortcut(f.pattern)
	}

	// Shortcut needs to be at least longer than 1 character.
	f.Shortcut = ""
	if len(shortcut) > 1 {
		f.Shortcut = strings.ToLower(shortcut)
	}
}

// findShortcut searches for the longest substring of the pattern that does not
// contain any of the special characters which are:
//
//	*
//	^
//	|
func findShortcut(pattern string) (shortcut string) {
	for pattern != "" {
		i := strings.IndexAny(pattern, "*^|")
		if i == -1 {
			if len(pattern) > len(shortcut) {
				return pattern
			}

			break
		}

		if i > len(shortcut) {
			shortcut = pattern[:i]
		}
		pattern = pattern[i+1:]
	}

	return shortcut
}

// findRegexpShortcut searches for a shortcut inside of a regexp pattern.
// Shortcut in this case is a longest string with no REGEX special characters.
// Also, we discard complicated regexps right away.
func findRegexpShortcut(pattern string) string {
	// Strip slashes.
	pattern = pattern[1 : len(pattern)-1]

	if strings.ContainsAny(pattern, "?|") {
		// Do not mess with complex expressions which use lookahead and with
		// those using ? special character.  With an alternation no single
		// literal is required.
		return ""
	}

	// Placeholder for a special character.
	specialCharacter := "..."

	// Prepend specialCharacter for the following replace calls to work
	// properly.
	pattern = specialCharacter + pattern

	// A character that may be absent is not a part of the shortcut.
	pattern = reRegexpOptionalCharacter.ReplaceAllStringFunc(pattern, func(m string) string {
		return specialCharacter + m[len(m)-1:]
	})

	// Strip all types of brackets.
	pattern = reRegexpBrackets1.ReplaceAllString(pattern, "$1"+specialCharacter)
	pattern = reRegexpBrackets2.ReplaceAllString(pattern, "$1"+specialCharacter)
	pattern = reRegexpBrackets3.ReplaceAllString(pattern, "$1"+specialCharacter)

	// Strip some escaped characters.
	pattern = reRegexpEscapedCharacters.ReplaceAllString(pattern, "$1"+specialCharacter)

	// Split by special characters.
	longest := ""
	for _, part := range reRegexpSpecialCharacters.Split(pattern, -1) {
		if len(part) > len(longest) {
			longest = part
		}
	}

	return longest
}

// parseRuleText splits the rule text in multiple parts:
//   - pattern is a basic rule pattern (which can be easily converted into a
//     regex);
//   - options is a string with all rule options;
//   - whitelist indicates if rule is "whitelist" (e.g. it should unblock
//     requests, not block them).
func parseRuleText(ruleText string) (pattern, options string, whitelist bool, err error) {
	startIndex := 0
	if strings.HasPrefix(ruleText, maskWhiteList) {
		whitelist = true
		startIndex = len(maskWhiteList)
	}

	if len(ruleText) <= startIndex {
		return "", "", false, fmt.Errorf("the rule is too short: %s", ruleText)
	}

	// Setting pattern to rule text (for the case of empty options).
	pattern = ruleText[startIndex:]

	// Avoid parsing options inside of a regex rule.
	if isRegexPattern(pattern) {
		return pattern, "", whitelist, nil
	}

	foundEscaped := false
	for i := len(ruleText) - 2; i >= startIndex; i-- {
		if ruleText[i] != optionsDelimiter {
			continue
		}

		if i > startIndex && ruleText[i-1] == escapeCharacter {
			foundEscaped = true

			continue
		}

		pattern = ruleText[startIndex:i]
		options = ruleText[i+1:]
		if foundEscaped {
			options = strings.ReplaceAll(options, `\$`, "$")
		}

		// Options delimiter was found, exiting loop.
		break
	}

	return pattern, options, whitelist, nil
}

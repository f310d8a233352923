package adengine

import (
	"slices"
	"strings"

	"github.com/AdguardTeam/adengine/rules"
)

// BlockerResult is the decision about a network request.
type BlockerResult struct {
	// Filter is the text of the rule that decided the result: the blocking
	// rule if the request is blocked, the exception if it is unblocked.
	Filter string `json:"filter,omitempty"`

	// Redirect is the data: URL of the resource the request should be
	// redirected to.  It is only set when the request is blocked.
	Redirect string `json:"redirect,omitempty"`

	// RewrittenURL is the request URL with the query parameters removed by
	// $removeparam rules.  It is only set when the request is not blocked.
	RewrittenURL string `json:"rewritten_url,omitempty"`

	// Matched is true if the request should be blocked.
	Matched bool `json:"matched"`

	// Exception is true if a blocking rule matched the request but an
	// exception unblocked it.
	Exception bool `json:"exception"`

	// Important is true if the request is blocked by an $important rule.
	Important bool `json:"important"`
}

// matchingResult contains the rules matching a request sorted into the groups
// that decide how the request should be processed.
type matchingResult struct {
	// basicRule is the blocking rule with the highest priority.
	basicRule *rules.NetworkRule

	// exceptionRule is the blocking exception with the highest priority.
	exceptionRule *rules.NetworkRule

	// redirectRules are the $redirect and $redirect-rule blocking rules.
	redirectRules []*rules.NetworkRule

	// redirectExceptions are the exceptions that disable redirects.
	redirectExceptions []*rules.NetworkRule

	// removeParamRules are the $removeparam rules.
	removeParamRules []*rules.NetworkRule

	// removeParamExceptions are the exceptions that disable $removeparam
	// rules.
	removeParamExceptions []*rules.NetworkRule

	// cspRules are the $csp rules.
	cspRules []*rules.NetworkRule

	// cspExceptions are the exceptions that disable $csp rules.
	cspExceptions []*rules.NetworkRule

	// documentRules are the exceptions that disable cosmetic filtering.
	documentRules []*rules.NetworkRule
}

// newMatchingResult sorts the matching rules.  The rules negated by $badfilter
// rules are removed first.
func newMatchingResult(matching []*rules.NetworkRule) (res *matchingResult) {
	matching = removeBadfilterNegated(matching)

	res = &matchingResult{}
	for _, rule := range matching {
		res.add(rule)
	}

	return res
}

// add puts rule into the corresponding groups.
func (res *matchingResult) add(rule *rules.NetworkRule) {
	if rule.IsDocumentWhitelistRule() {
		res.documentRules = append(res.documentRules, rule)
	}

	switch {
	case rule.IsBlocking():
		if res.basicRule == nil || rule.IsHigherPriority(res.basicRule) {
			res.basicRule = rule
		}
	case rule.IsBlockingException():
		if res.exceptionRule == nil || rule.IsHigherPriority(res.exceptionRule) {
			res.exceptionRule = rule
		}
	}

	switch {
	case rule.IsOptionEnabled(rules.OptionCsp):
		if rule.Whitelist {
			res.cspExceptions = append(res.cspExceptions, rule)
		} else {
			res.cspRules = append(res.cspRules, rule)
		}
	case rule.IsOptionEnabled(rules.OptionRemoveparam):
		if rule.Whitelist {
			res.removeParamExceptions = append(res.removeParamExceptions, rule)
		} else {
			res.removeParamRules = append(res.removeParamRules, rule)
		}
	case rule.Redirect != "" || rule.IsOptionEnabled(rules.OptionRedirectRule):
		if rule.Whitelist {
			res.redirectExceptions = append(res.redirectExceptions, rule)
		} else {
			res.redirectRules = append(res.redirectRules, rule)
		}
	}
}

// removeBadfilterNegated removes the $badfilter rules and the rules they
// negate from matching.
func removeBadfilterNegated(matching []*rules.NetworkRule) (filtered []*rules.NetworkRule) {
	var badfilters []*rules.NetworkRule
	for _, rule := range matching {
		if rule.IsOptionEnabled(rules.OptionBadfilter) {
			badfilters = append(badfilters, rule)
		}
	}

	if len(badfilters) == 0 {
		return matching
	}

	filtered = make([]*rules.NetworkRule, 0, len(matching))
	for _, rule := range matching {
		negated := slices.ContainsFunc(badfilters, func(bf *rules.NetworkRule) (ok bool) {
			return bf == rule || bf.NegatesBadfilter(rule)
		})

		if !negated {
			filtered = append(filtered, rule)
		}
	}

	return filtered
}

// blocked returns the rule that decides the result and whether the request
// should be blocked.  An $important blocking rule is never overridden by an
// exception, even an $important one.
func (res *matchingResult) blocked() (rule *rules.NetworkRule, ok bool) {
	block, exception := res.basicRule, res.exceptionRule
	switch {
	case block == nil:
		return nil, false
	case exception == nil, block.IsImportant():
		return block, true
	default:
		return exception, false
	}
}

// blockerResult computes the decision about the request with URL u.
// redirectURL turns a resource name into the redirect URL, it returns "" if
// the resource cannot be used.
func (res *matchingResult) blockerResult(
	u string,
	redirectURL func(name string) (u string),
) (br *BlockerResult) {
	br = &BlockerResult{}

	rule, blocked := res.blocked()
	if rule == nil {
		br.RewrittenURL = res.rewriteURL(u)

		return br
	}

	br.Filter = rule.RuleText
	if !blocked {
		br.Exception = true
		br.RewrittenURL = res.rewriteURL(u)

		return br
	}

	br.Matched = true
	br.Important = rule.IsImportant()

	if name := res.redirectName(); name != "" {
		br.Redirect = redirectURL(name)
	}

	return br
}

// redirectName returns the name of the resource a blocked request should be
// redirected to or "" if there is none.
func (res *matchingResult) redirectName() (name string) {
	var best *rules.NetworkRule
	for _, rule := range res.redirectRules {
		if res.redirectExcepted(rule) {
			continue
		}

		if best == nil || rule.IsHigherPriority(best) {
			best = rule
		}
	}

	if best == nil {
		return ""
	}

	return best.Redirect
}

// redirectExcepted returns true if the redirect of rule is disabled by an
// exception.  An exception without a resource name disables all redirects.
func (res *matchingResult) redirectExcepted(rule *rules.NetworkRule) (ok bool) {
	for _, e := range res.redirectExceptions {
		if e.Redirect == "" || e.Redirect == rule.Redirect {
			return true
		}
	}

	return false
}

// rewriteURL applies the $removeparam rules that are not disabled by
// exceptions to u.  It returns "" if u is not changed.
func (res *matchingResult) rewriteURL(u string) (rewritten string) {
	ruleList := slices.Clone(res.removeParamRules)
	slices.SortFunc(ruleList, func(a, b *rules.NetworkRule) (c int) {
		return strings.Compare(a.RuleText, b.RuleText)
	})

	cur := u
	for _, rule := range ruleList {
		if res.removeParamExcepted(rule) {
			continue
		}

		if next, ok := rule.RewriteURL(cur); ok {
			cur = next
		}
	}

	if cur == u {
		return ""
	}

	return cur
}

// removeParamExcepted returns true if rule is disabled by an exception.  An
// exception without a value disables all $removeparam rules.
func (res *matchingResult) removeParamExcepted(rule *rules.NetworkRule) (ok bool) {
	for _, e := range res.removeParamExceptions {
		if e.RemoveParam == "" || e.RemoveParam == rule.RemoveParam {
			return true
		}
	}

	return false
}

// cspDirectives returns the sorted unique directives of the $csp rules that
// are not disabled by exceptions.  An exception without a value disables all
// directives.
func (res *matchingResult) cspDirectives() (directives []string) {
	disabled := map[string]struct{}{}
	for _, e := range res.cspExceptions {
		if e.CSP == "" {
			return nil
		}

		disabled[e.CSP] = struct{}{}
	}

	for _, rule := range res.cspRules {
		if _, ok := disabled[rule.CSP]; ok || rule.CSP == "" {
			continue
		}

		directives = append(directives, rule.CSP)
	}

	slices.Sort(directives)

	return slices.Compact(directives)
}

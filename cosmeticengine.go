package adengine

import (
	"cmp"
	"log/slog"
	"slices"
	"strings"

	"github.com/AdguardTeam/adengine/filterlist"
	"github.com/AdguardTeam/adengine/filterutil"
	"github.com/AdguardTeam/adengine/resources"
	"github.com/AdguardTeam/adengine/rules"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/bits-and-blooms/bloom/v3"
)

// keyFilterFalsePositiveRate is the false positive rate of the filter of
// class and id keys.
const keyFilterFalsePositiveRate = 0.01

// CosmeticEngine combines all the cosmetic rules and allows to quickly find
// the rules for a page.
type CosmeticEngine struct {
	// specific maps permitted domains to the rules limited to them.
	specific map[string][]*rules.CosmeticRule

	// exceptions maps permitted domains to the exceptions limited to them.
	exceptions map[string][]*rules.CosmeticRule

	// keyed maps ".class" and "#id" keys to the generic element hiding rules
	// whose selectors start with them.
	keyed map[string][]*rules.CosmeticRule

	// keyFilter prefilters the keys of keyed.
	keyFilter *bloom.BloomFilter

	// wildcard are the rules that have a permitted "domain.*" pattern.
	wildcard []*rules.CosmeticRule

	// wildcardExceptions are the exceptions that have a permitted
	// "domain.*" pattern.
	wildcardExceptions []*rules.CosmeticRule

	// generic are the generic rules without a class or id key, both element
	// hiding and scriptlet ones.
	generic []*rules.CosmeticRule

	// rules are all the rules of the engine in the order of their indexes.
	rules []*rules.CosmeticRule

	// RulesCount is the count of rules added to the engine.
	RulesCount int
}

// NewCosmeticEngine builds a new cosmetic engine from the specified rule
// storage.
func NewCosmeticEngine(s *filterlist.RuleStorage) (e *CosmeticEngine) {
	var rs []*rules.CosmeticRule
	scanner := s.NewRuleStorageScanner()
	for scanner.Scan() {
		f, _ := scanner.Rule()
		if rule, ok := f.(*rules.CosmeticRule); ok {
			rs = append(rs, rule)
		}
	}

	return newCosmeticEngine(rs)
}

// newCosmeticEngine builds a new cosmetic engine from rs.
func newCosmeticEngine(rs []*rules.CosmeticRule) (e *CosmeticEngine) {
	e = &CosmeticEngine{
		specific:   map[string][]*rules.CosmeticRule{},
		exceptions: map[string][]*rules.CosmeticRule{},
		keyed:      map[string][]*rules.CosmeticRule{},
		rules:      slices.Clone(rs),
	}

	slices.SortFunc(e.rules, func(a, b *rules.CosmeticRule) (c int) {
		return cmp.Compare(a.ID, b.ID)
	})

	for _, rule := range e.rules {
		e.addRule(rule)
	}

	e.keyFilter = bloom.NewWithEstimates(uint(max(len(e.keyed), 1)), keyFilterFalsePositiveRate)
	for key := range e.keyed {
		e.keyFilter.AddString(key)
	}

	return e
}

// addRule adds rule to the corresponding index.
func (e *CosmeticEngine) addRule(rule *rules.CosmeticRule) {
	e.RulesCount++

	if rule.IsGeneric() {
		if key := rule.ClassIDKey(); key != "" {
			e.keyed[key] = append(e.keyed[key], rule)
		} else {
			e.generic = append(e.generic, rule)
		}

		return
	}

	index, wildcard := e.specific, &e.wildcard
	if rule.Whitelist {
		index, wildcard = e.exceptions, &e.wildcardExceptions
	}

	for _, d := range rule.GetPermittedDomains() {
		if !strings.HasSuffix(d, ".*") {
			index[d] = append(index[d], rule)
		} else if !slices.Contains(*wildcard, rule) {
			*wildcard = append(*wildcard, rule)
		}
	}
}

// URLSpecificResources are the cosmetic resources for a page.
type URLSpecificResources struct {
	// HideSelectors are the selectors of the elements to hide.
	HideSelectors []string `json:"hide_selectors"`

	// Exceptions are the selectors excepted on the page.  They should be
	// passed to HiddenClassIDSelectors.
	Exceptions []string `json:"exceptions"`

	// InjectedScript is the code of the scriptlets to inject into the page.
	InjectedScript string `json:"injected_script"`

	// Generichide is true if generic rules are disabled on the page.
	Generichide bool `json:"generichide"`
}

// cosmeticOptions are the parts of cosmetic filtering enabled on a page.
type cosmeticOptions struct {
	// hide is false if element hiding is disabled.
	hide bool

	// generic is false if generic rules are disabled.
	generic bool

	// scripts is false if scriptlets are disabled.
	scripts bool
}

// defaultCosmeticOptions enables all cosmetic filtering.
var defaultCosmeticOptions = cosmeticOptions{
	hide:    true,
	generic: true,
	scripts: true,
}

// resources returns the cosmetic resources for hostname.  catalog is used to
// render the scriptlets.
func (e *CosmeticEngine) resources(
	logger *slog.Logger,
	hostname string,
	opts cosmeticOptions,
	catalog *resources.Catalog,
) (res *URLSpecificResources) {
	res = &URLSpecificResources{
		Generichide: !opts.generic,
	}

	excepted := e.exceptedContent(hostname)
	for content := range excepted {
		res.Exceptions = append(res.Exceptions, content)
	}

	slices.Sort(res.Exceptions)

	var selectors, scriptlets []*rules.CosmeticRule
	add := func(rule *rules.CosmeticRule) {
		if _, ok := excepted[rule.Content]; ok || !rule.Match(hostname) {
			return
		}

		if rule.Type == rules.CosmeticScriptlet {
			scriptlets = append(scriptlets, rule)
		} else {
			selectors = append(selectors, rule)
		}
	}

	for _, d := range filterutil.Subdomains(hostname) {
		for _, rule := range e.specific[d] {
			add(rule)
		}
	}

	for _, rule := range e.wildcard {
		add(rule)
	}

	for _, rule := range e.generic {
		if opts.generic || rule.Type == rules.CosmeticScriptlet {
			add(rule)
		}
	}

	if opts.hide {
		res.HideSelectors = ruleContents(selectors)
	}

	if opts.scripts {
		res.InjectedScript = renderScriptlets(logger, scriptlets, catalog)
	}

	return res
}

// exceptedContent returns the set of contents excepted on hostname.
func (e *CosmeticEngine) exceptedContent(hostname string) (excepted map[string]struct{}) {
	excepted = map[string]struct{}{}
	for _, d := range filterutil.Subdomains(hostname) {
		for _, rule := range e.exceptions[d] {
			if rule.Match(hostname) {
				excepted[rule.Content] = struct{}{}
			}
		}
	}

	for _, rule := range e.wildcardExceptions {
		if rule.Match(hostname) {
			excepted[rule.Content] = struct{}{}
		}
	}

	return excepted
}

// HiddenClassIDSelectors returns the selectors of the generic rules keyed by
// the given classes and ids, except for the selectors in exceptions.
func (e *CosmeticEngine) HiddenClassIDSelectors(classes, ids, exceptions []string) (selectors []string) {
	var matched []*rules.CosmeticRule
	lookup := func(key string) {
		if !e.keyFilter.TestString(key) {
			return
		}

		for _, rule := range e.keyed[key] {
			if !slices.Contains(exceptions, rule.Content) {
				matched = append(matched, rule)
			}
		}
	}

	for _, c := range classes {
		lookup("." + c)
	}

	for _, id := range ids {
		lookup("#" + id)
	}

	return ruleContents(matched)
}

// ruleContents returns the sorted unique contents of rs.
func ruleContents(rs []*rules.CosmeticRule) (contents []string) {
	for _, rule := range rs {
		contents = append(contents, rule.Content)
	}

	slices.Sort(contents)

	return slices.Compact(contents)
}

// renderScriptlets renders the scriptlets of rs in the order of their indexes.
// The scriptlets that cannot be rendered are skipped.
func renderScriptlets(
	logger *slog.Logger,
	rs []*rules.CosmeticRule,
	catalog *resources.Catalog,
) (script string) {
	slices.SortFunc(rs, func(a, b *rules.CosmeticRule) (c int) {
		return cmp.Compare(a.ID, b.ID)
	})

	var sb strings.Builder
	seen := map[string]struct{}{}
	for _, rule := range rs {
		if _, ok := seen[rule.Content]; ok {
			continue
		}

		seen[rule.Content] = struct{}{}

		s, err := rule.Scriptlet()
		if err != nil {
			logger.Debug("parsing scriptlet", "rule", rule.RuleText, slogutil.KeyError, err)

			continue
		}

		code, err := catalog.Scriptlet(s)
		if err != nil {
			logger.Debug("rendering scriptlet", "rule", rule.RuleText, slogutil.KeyError, err)

			continue
		}

		sb.WriteString(code)
		sb.WriteByte('\n')
	}

	return sb.String()
}


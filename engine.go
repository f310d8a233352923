package adengine

import (
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"

	"github.com/AdguardTeam/adengine/filterlist"
	"github.com/AdguardTeam/adengine/filterutil"
	"github.com/AdguardTeam/adengine/regexmgr"
	"github.com/AdguardTeam/adengine/resources"
	"github.com/AdguardTeam/adengine/rules"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// defaultListID is the identifier of the list created by [NewEngine].
const defaultListID = 1

// Engine represents the filtering engine with all the loaded rules.  The
// index is immutable once built, the enabled tags, the resource catalog and
// the compiled regular expressions are the only state that changes.  Engine
// is safe for concurrent use.
type Engine struct {
	logger   *slog.Logger
	storage  *filterlist.RuleStorage
	network  *NetworkEngine
	cosmetic *CosmeticEngine
	regexes  *regexmgr.Manager

	// mu protects tags and catalog.  Both are replaced instead of being
	// modified, so a query can use them after releasing mu.
	mu      *sync.Mutex
	tags    map[string]struct{}
	catalog *resources.Catalog
}

// NewEngine parses rulesText, which contains one rule per line, and builds an
// engine of them.  The lines that cannot be parsed are logged and skipped.
func NewEngine(c *Config, rulesText string) (e *Engine, err error) {
	return NewEngineFromLists(c, []filterlist.RuleList{&filterlist.StringRuleList{
		ID:        defaultListID,
		RulesText: rulesText,
	}})
}

// NewEngineFromLists builds an engine of the rules of lists.  The identifiers
// of the lists must be unique.
func NewEngineFromLists(c *Config, lists []filterlist.RuleList) (e *Engine, err error) {
	logger := c.logger()

	s, err := filterlist.NewRuleStorage(logger, lists)
	if err != nil {
		return nil, fmt.Errorf("creating rule storage: %w", err)
	}

	e = newEngine(c, s, NewNetworkEngine(s), NewCosmeticEngine(s))

	logger.Debug(
		"engine built",
		"network_rules", e.network.RulesCount,
		"cosmetic_rules", e.cosmetic.RulesCount,
	)

	return e, nil
}

// newEngine returns an engine with the given index.
func newEngine(
	c *Config,
	s *filterlist.RuleStorage,
	network *NetworkEngine,
	cosmetic *CosmeticEngine,
) (e *Engine) {
	logger := c.logger()

	rc := &regexmgr.Config{
		Logger: logger.With("prefix", "regexmgr"),
	}

	if c != nil {
		rc.Clock = c.Clock
		rc.Policy = c.DiscardPolicy
	}

	return &Engine{
		logger:   logger,
		storage:  s,
		network:  network,
		cosmetic: cosmetic,
		regexes:  regexmgr.New(rc),
		mu:       &sync.Mutex{},
		tags:     map[string]struct{}{},
		catalog:  resources.Empty(),
	}
}

// state returns the current tags and resource catalog.
func (e *Engine) state() (tags map[string]struct{}, catalog *resources.Catalog) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.tags, e.catalog
}

// newRequest creates a request with the currently enabled tags.
func (e *Engine) newRequest(
	u string,
	host string,
	sourceHost string,
	thirdParty bool,
	resourceType string,
) (r *rules.Request) {
	r = rules.NewRequestThirdParty(
		u,
		host,
		sourceHost,
		thirdParty,
		rules.RequestTypeFromString(resourceType),
	)

	r.Tags, _ = e.state()

	return r
}

// matchAll returns the result of matching r against the network rules.
func (e *Engine) matchAll(r *rules.Request) (res *matchingResult) {
	e.regexes.MaybeCleanup()

	return newMatchingResult(e.network.MatchAll(r, e.regexes))
}

// Matches decides whether the request to u should be blocked.  host is the
// hostname of u, sourceHost is the hostname of the page that made the
// request, and resourceType is one of the names accepted by
// [rules.RequestTypeFromString].
func (e *Engine) Matches(
	u string,
	host string,
	sourceHost string,
	thirdParty bool,
	resourceType string,
) (res *BlockerResult) {
	r := e.newRequest(u, host, sourceHost, thirdParty, resourceType)

	_, catalog := e.state()

	return e.matchAll(r).blockerResult(r.URL, func(name string) (redirect string) {
		redirect, err := catalog.RedirectDataURL(name)
		if err != nil {
			e.logger.Debug("resolving redirect", slogutil.KeyError, err)

			return ""
		}

		return redirect
	})
}

// CSPDirectives returns the Content-Security-Policy directives that should be
// added to the response to the request.  ok is false if there are none.
func (e *Engine) CSPDirectives(
	u string,
	host string,
	sourceHost string,
	thirdParty bool,
	resourceType string,
) (directives string, ok bool) {
	r := e.newRequest(u, host, sourceHost, thirdParty, resourceType)
	ds := e.matchAll(r).cspDirectives()
	if len(ds) == 0 {
		return "", false
	}

	return strings.Join(ds, ", "), true
}

// URLCosmeticResources returns the cosmetic resources for the page at u.
// The exceptions with $elemhide, $generichide and $document matching the page
// disable the corresponding parts of cosmetic filtering.
func (e *Engine) URLCosmeticResources(u string) (res *URLSpecificResources) {
	host := filterutil.ExtractHostname(u)
	r := e.newRequest(u, host, host, false, rules.TypeDocument.String())

	opts := defaultCosmeticOptions
	for _, rule := range e.matchAll(r).documentRules {
		switch {
		case rule.IsOptionEnabled(rules.OptionDocument):
			opts = cosmeticOptions{}
		case rule.IsOptionEnabled(rules.OptionElemhide):
			opts.hide = false
		case rule.IsOptionEnabled(rules.OptionGenerichide):
			opts.generic = false
		}
	}

	_, catalog := e.state()

	return e.cosmetic.resources(e.logger, r.Hostname, opts, catalog)
}

// HiddenClassIDSelectors returns the selectors of the generic element hiding
// rules for the classes and ids found on a page, except for the selectors in
// exceptions.
func (e *Engine) HiddenClassIDSelectors(classes, ids, exceptions []string) (selectors []string) {
	return e.cosmetic.HiddenClassIDSelectors(classes, ids, exceptions)
}

// AddTag enables the rules with the $tag=name modifier.
func (e *Engine) AddTag(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.tags[name]; ok {
		return
	}

	tags := maps.Clone(e.tags)
	tags[name] = struct{}{}
	e.tags = tags
}

// RemoveTag disables the rules with the $tag=name modifier.
func (e *Engine) RemoveTag(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.tags[name]; !ok {
		return
	}

	tags := maps.Clone(e.tags)
	delete(tags, name)
	e.tags = tags
}

// TagExists returns true if the tag is enabled.
func (e *Engine) TagExists(name string) (ok bool) {
	tags, _ := e.state()
	_, ok = tags[name]

	return ok
}

// UseResources replaces the resource catalog with the one parsed from the JSON
// data.  The current catalog is kept if data cannot be parsed.
func (e *Engine) UseResources(data []byte) (err error) {
	catalog, err := resources.Parse(data)
	if err != nil {
		return fmt.Errorf("using resources: %w", err)
	}

	e.useCatalog(catalog)

	return nil
}

// useCatalog replaces the resource catalog.
func (e *Engine) useCatalog(catalog *resources.Catalog) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.catalog = catalog
}

// SetupDiscardPolicy sets the discard policy of the compiled regular
// expressions.
func (e *Engine) SetupDiscardPolicy(p regexmgr.DiscardPolicy) {
	e.regexes.SetDiscardPolicy(p)
}

// DiscardRegex drops the compiled regular expression of the rule with the
// given id.  It is compiled again when needed.
func (e *Engine) DiscardRegex(id int64) {
	e.regexes.Discard(id)
}

// DebugInfo returns the information about the compiled regular expressions.
func (e *Engine) DebugInfo() (info *regexmgr.DebugInfo) {
	return e.regexes.DebugInfo()
}

// NetworkRulesCount returns the number of network rules in the engine.
func (e *Engine) NetworkRulesCount() (n int) {
	return e.network.RulesCount
}

// CosmeticRulesCount returns the number of cosmetic rules in the engine.
func (e *Engine) CosmeticRulesCount() (n int) {
	return e.cosmetic.RulesCount
}

// Close releases the rule lists of the engine.
func (e *Engine) Close() (err error) {
	return e.storage.Close()
}

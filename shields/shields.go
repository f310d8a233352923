// Package shields contains the service that owns the current ad-blocking
// engine.  Engines are replaced as a whole when the filter lists are
// reloaded, while the enabled tags, the resources and the discard policy
// survive the replacement.
package shields

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/AdguardTeam/adengine"
	"github.com/AdguardTeam/adengine/filterutil"
	"github.com/AdguardTeam/adengine/regexmgr"
	"github.com/AdguardTeam/adengine/resources"
	"github.com/AdguardTeam/adengine/rules"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// ErrEmptySnapshot is returned by [Service.Load] when an empty snapshot is
// given.  The current engine is kept.
const ErrEmptySnapshot errors.Error = "empty snapshot"

// Config is the configuration structure for a *Service.
type Config struct {
	// Logger is used to log the service's activity.  If nil,
	// [slogutil.NewDiscardLogger] is used.
	Logger *slog.Logger

	// Clock is passed to the engines.  If nil, [regexmgr.SystemClock] is
	// used.
	Clock regexmgr.Clock

	// DiscardPolicy is the initial discard policy of the compiled regular
	// expressions.
	DiscardPolicy regexmgr.DiscardPolicy
}

// Service owns the current engine.  Queries use the engine that is current
// at the moment of the call and never wait for a reload.  Service is safe for
// concurrent use.
type Service struct {
	logger *slog.Logger
	clock  regexmgr.Clock

	// engine is the current engine, nil until the first successful load.
	engine atomic.Pointer[adengine.Engine]

	// mu serializes the changes of the engine and the fields below.
	mu *sync.Mutex

	// tags are the enabled tags, added to every new engine.
	tags map[string]struct{}

	// resources is the last resource catalog data that has been used
	// successfully.
	resources []byte

	// policy is the discard policy, set up on every new engine.
	policy regexmgr.DiscardPolicy
}

// New returns a new *Service without an engine.  Until the first successful
// [Service.Load], requests are never blocked.
func New(c *Config) (s *Service) {
	s = &Service{
		logger: c.Logger,
		clock:  c.Clock,
		mu:     &sync.Mutex{},
		tags:   map[string]struct{}{},
		policy: c.DiscardPolicy,
	}

	if s.logger == nil {
		s.logger = slogutil.NewDiscardLogger()
	}

	return s
}

// Load replaces the current engine.  If deserialize is true, buf is a
// snapshot written by [adengine.Engine.Serialize], otherwise it is the text
// of a filter list.  resourcesJSON is the resource catalog for the new
// engine; if it is empty, the last used catalog is kept.  If the new engine
// cannot be created or resourcesJSON cannot be parsed, the current engine
// stays in place.
func (s *Service) Load(deserialize bool, buf, resourcesJSON []byte) (err error) {
	e, err := s.newEngine(deserialize, buf)
	if err != nil {
		s.logger.Warn("engine not loaded", slogutil.KeyError, err)

		return fmt.Errorf("loading engine: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.resources
	if len(resourcesJSON) > 0 {
		res = resourcesJSON
	}

	if len(res) > 0 {
		err = e.UseResources(res)
		if err != nil {
			return fmt.Errorf("loading engine: %w", err)
		}

		s.resources = res
	}

	e.SetupDiscardPolicy(s.policy)
	for tag := range s.tags {
		e.AddTag(tag)
	}

	// Queries in flight may still use the previous engine, so it is left to
	// the garbage collector.
	s.engine.Store(e)

	s.logger.Info(
		"engine loaded",
		"deserialized", deserialize,
		"network_rules", e.NetworkRulesCount(),
		"cosmetic_rules", e.CosmeticRulesCount(),
	)

	return nil
}

// newEngine creates an engine from buf.
func (s *Service) newEngine(deserialize bool, buf []byte) (e *adengine.Engine, err error) {
	conf := &adengine.Config{
		Logger: s.logger.With("prefix", "adengine"),
		Clock:  s.clock,
	}

	if !deserialize {
		return adengine.NewEngine(conf, string(buf))
	}

	if len(buf) == 0 {
		return nil, ErrEmptySnapshot
	}

	return adengine.Deserialize(conf, buf)
}

// Engine returns the current engine or nil if none has been loaded.
func (s *Service) Engine() (e *adengine.Engine) {
	return s.engine.Load()
}

// ShouldStartRequest decides whether the request to u made by the page on
// tabHost should be blocked.  The request is third-party if u and tabHost
// belong to different registrable domains.
func (s *Service) ShouldStartRequest(u, resourceType, tabHost string) (res *adengine.BlockerResult) {
	e := s.engine.Load()
	if e == nil {
		return &adengine.BlockerResult{}
	}

	host := filterutil.ExtractHostname(u)

	return e.Matches(u, host, tabHost, rules.IsThirdParty(host, tabHost), resourceType)
}

// GetCSPDirectives returns the Content-Security-Policy directives for the
// response to the request to u made by the page on tabHost.  ok is false if
// there are none.
func (s *Service) GetCSPDirectives(u, resourceType, tabHost string) (directives string, ok bool) {
	e := s.engine.Load()
	if e == nil {
		return "", false
	}

	host := filterutil.ExtractHostname(u)

	return e.CSPDirectives(u, host, tabHost, rules.IsThirdParty(host, tabHost), resourceType)
}

// EnableTag enables or disables the rules with the $tag=tag modifier in the
// current and all future engines.
func (s *Service) EnableTag(tag string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.engine.Load()
	if enabled {
		s.tags[tag] = struct{}{}
		if e != nil {
			e.AddTag(tag)
		}
	} else {
		delete(s.tags, tag)
		if e != nil {
			e.RemoveTag(tag)
		}
	}
}

// TagExists returns true if tag is enabled.
func (s *Service) TagExists(tag string) (ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok = s.tags[tag]

	return ok
}

// Tags returns the sorted enabled tags.
func (s *Service) Tags() (tags []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Sorted(maps.Keys(s.tags))
}

// UseResources replaces the resource catalog of the current and all future
// engines.  The current catalog is kept if data cannot be parsed.
func (s *Service) UseResources(data []byte) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.engine.Load()
	if e != nil {
		err = e.UseResources(data)
	} else {
		_, err = resources.Parse(data)
	}

	if err != nil {
		return err
	}

	s.resources = data

	return nil
}

// SetupDiscardPolicy sets the discard policy of the compiled regular
// expressions of the current and all future engines.
func (s *Service) SetupDiscardPolicy(p regexmgr.DiscardPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.policy = p
	if e := s.engine.Load(); e != nil {
		e.SetupDiscardPolicy(p)
	}
}

// DiscardRegex drops the compiled regular expression of the rule with the
// given id in the current engine.
func (s *Service) DiscardRegex(id int64) {
	if e := s.engine.Load(); e != nil {
		e.DiscardRegex(id)
	}
}

// URLCosmeticResources returns the cosmetic resources for the page at u.
func (s *Service) URLCosmeticResources(u string) (res *adengine.URLSpecificResources) {
	e := s.engine.Load()
	if e == nil {
		return &adengine.URLSpecificResources{}
	}

	return e.URLCosmeticResources(u)
}

// HiddenClassIDSelectors returns the selectors of the generic element hiding
// rules for the classes and ids found on a page.
func (s *Service) HiddenClassIDSelectors(classes, ids, exceptions []string) (selectors []string) {
	e := s.engine.Load()
	if e == nil {
		return nil
	}

	return e.HiddenClassIDSelectors(classes, ids, exceptions)
}

// DebugInfo returns the information about the compiled regular expressions
// of the current engine.
func (s *Service) DebugInfo() (info *regexmgr.DebugInfo) {
	e := s.engine.Load()
	if e == nil {
		return &regexmgr.DebugInfo{}
	}

	return e.DebugInfo()
}

// Package regexmgr owns the compiled regular expressions of network rules.
// Patterns are compiled lazily on first use and dropped again according to a
// discard policy, which keeps memory bounded for lists with many regex rules.
package regexmgr

import (
	"cmp"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/hashicorp/golang-lru/simplelru"
)

// Clock returns the current time.
type Clock interface {
	Now() (now time.Time)
}

// SystemClock is a [Clock] that uses [time.Now].
type SystemClock struct{}

// type check
var _ Clock = SystemClock{}

// Now implements the [Clock] interface for SystemClock.
func (SystemClock) Now() (now time.Time) {
	return time.Now()
}

// DiscardPolicy controls when compiled patterns are dropped.  Zero values
// disable the corresponding limit.
type DiscardPolicy struct {
	// CleanupInterval is the minimum time between two opportunistic
	// cleanups triggered by [Manager.MaybeCleanup].
	CleanupInterval time.Duration

	// DiscardUnusedTime is the time after which an unused pattern is
	// dropped during cleanup.
	DiscardUnusedTime time.Duration

	// MaxCompiled is the maximum number of compiled patterns.  When a new
	// pattern is compiled at the limit, the least recently used one is
	// dropped.
	MaxCompiled int
}

// Entry is the diagnostic information about a compiled pattern.
type Entry struct {
	// Regex is the source of the pattern.
	Regex string `json:"regex"`

	// ID is the id of the rule the pattern belongs to.
	ID int64 `json:"id"`

	// UnusedSec is the number of whole seconds since the last use.
	UnusedSec int64 `json:"unused_sec"`

	// UsageCount is the number of times the pattern has been used.
	UsageCount uint64 `json:"usage_count"`
}

// DebugInfo is the diagnostic information about the manager.
type DebugInfo struct {
	// Entries are the compiled patterns, sorted by id.
	Entries []Entry `json:"regex_data"`

	// CompiledRegexCount is the number of compiled patterns.
	CompiledRegexCount int `json:"compiled_regex_count"`
}

// entry is a compiled pattern.
type entry struct {
	lastUsed   time.Time
	re         *regexp.Regexp
	expr       string
	usageCount uint64
}

// Config is the configuration structure for a *Manager.
type Config struct {
	// Logger is used to log the manager's activity.  If nil,
	// [slogutil.NewDiscardLogger] is used.
	Logger *slog.Logger

	// Clock is used to track the last use of the patterns.  If nil,
	// [SystemClock] is used.
	Clock Clock

	// Policy is the initial discard policy.
	Policy DiscardPolicy
}

// Manager is a registry of compiled patterns keyed by rule id.  It is safe for
// concurrent use.
type Manager struct {
	logger *slog.Logger
	clock  Clock

	// mu protects the fields below.
	mu *sync.Mutex

	// compiled maps rule ids to *entry values in the order of use.
	compiled *simplelru.LRU

	// invalid contains the ids of the rules whose patterns failed to
	// compile, so that they are not recompiled on every match.
	invalid map[int64]error

	lastCleanup time.Time
	policy      DiscardPolicy
}

// type check
var _ interface {
	Compile(id int64, expr string) (re *regexp.Regexp, err error)
} = (*Manager)(nil)

// New returns a new properly initialized *Manager.  c may be nil.
func New(c *Config) (m *Manager) {
	if c == nil {
		c = &Config{}
	}

	m = &Manager{
		logger:  c.Logger,
		clock:   c.Clock,
		mu:      &sync.Mutex{},
		invalid: map[int64]error{},
	}

	if m.logger == nil {
		m.logger = slogutil.NewDiscardLogger()
	}

	if m.clock == nil {
		m.clock = SystemClock{}
	}

	m.compiled = m.newLRU(c.Policy.MaxCompiled)
	m.policy = c.Policy
	m.lastCleanup = m.clock.Now()

	return m
}

// newLRU returns an LRU bounded by maxCompiled or practically unbounded if
// maxCompiled is not positive.
func (m *Manager) newLRU(maxCompiled int) (l *simplelru.LRU) {
	size := maxCompiled
	if size <= 0 {
		size = math.MaxInt
	}

	// The error is only returned for non-positive sizes.
	l, err := simplelru.NewLRU(size, m.onEvict)
	if err != nil {
		panic(fmt.Errorf("regexmgr: creating lru: %w", err))
	}

	return l
}

// onEvict is called by the LRU when the least recently used pattern is
// dropped to stay within the limit.
func (m *Manager) onEvict(key, _ any) {
	m.logger.Debug("evicted regex", "id", key)
}

// Compile returns the compiled pattern for the rule with the given id,
// compiling and registering expr if needed.  A failed compilation is
// remembered and returned again on subsequent calls.
func (m *Manager) Compile(id int64, expr string) (re *regexp.Regexp, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if v, ok := m.compiled.Get(id); ok {
		e := v.(*entry)
		if e.expr == expr {
			e.lastUsed = now
			e.usageCount++

			return e.re, nil
		}
	}

	if err = m.invalid[id]; err != nil {
		return nil, err
	}

	re, err = regexp.Compile(expr)
	if err != nil {
		m.logger.Debug("bad regex", "id", id, slogutil.KeyError, err)
		m.invalid[id] = err

		return nil, err
	}

	m.compiled.Add(id, &entry{
		lastUsed:   now,
		re:         re,
		expr:       expr,
		usageCount: 1,
	})

	return re, nil
}

// Discard drops the compiled pattern of the rule with the given id.  It will
// be compiled again on the next use.
func (m *Manager) Discard(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.compiled.Remove(id)
	delete(m.invalid, id)
}

// SetDiscardPolicy replaces the discard policy.  A lower MaxCompiled takes
// effect immediately.
func (m *Manager) SetDiscardPolicy(p DiscardPolicy) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.policy = p

	size := p.MaxCompiled
	if size <= 0 {
		size = math.MaxInt
	}

	evicted := m.compiled.Resize(size)
	m.logger.Debug("discard policy updated", "policy", p, "evicted", evicted)
}

// Policy returns the current discard policy.
func (m *Manager) Policy() (p DiscardPolicy) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.policy
}

// MaybeCleanup runs [Manager.Cleanup] if the cleanup interval of the policy
// has elapsed since the last cleanup.  It is meant to be called on every
// match.
func (m *Manager) MaybeCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.policy.CleanupInterval <= 0 {
		return
	}

	if now := m.clock.Now(); now.Sub(m.lastCleanup) >= m.policy.CleanupInterval {
		m.cleanup(now)
	}
}

// Cleanup drops the patterns that have not been used for longer than the
// policy allows.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cleanup(m.clock.Now())
}

// cleanup drops the unused patterns.  m.mu is expected to be locked.
func (m *Manager) cleanup(now time.Time) {
	m.lastCleanup = now

	maxUnused := m.policy.DiscardUnusedTime
	if maxUnused <= 0 {
		return
	}

	removed := 0

	// Keys are ordered from the least recently used one, so the scan stops
	// at the first entry that is still fresh.
	for _, k := range m.compiled.Keys() {
		v, ok := m.compiled.Peek(k)
		if !ok {
			continue
		}

		if now.Sub(v.(*entry).lastUsed) < maxUnused {
			break
		}

		m.compiled.Remove(k)
		removed++
	}

	if removed > 0 {
		m.logger.Debug("discarded unused regexes", "count", removed)
	}
}

// Len returns the number of compiled patterns.
func (m *Manager) Len() (n int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.compiled.Len()
}

// DebugInfo returns the diagnostic information about the compiled patterns.
func (m *Manager) DebugInfo() (info *DebugInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	info = &DebugInfo{
		CompiledRegexCount: m.compiled.Len(),
		Entries:            make([]Entry, 0, m.compiled.Len()),
	}

	for _, k := range m.compiled.Keys() {
		v, ok := m.compiled.Peek(k)
		if !ok {
			continue
		}

		e := v.(*entry)
		info.Entries = append(info.Entries, Entry{
			Regex:      e.expr,
			ID:         k.(int64),
			UnusedSec:  int64(now.Sub(e.lastUsed) / time.Second),
			UsageCount: e.usageCount,
		})
	}

	slices.SortFunc(info.Entries, func(a, b Entry) int { return cmp.Compare(a.ID, b.ID) })

	return info
}

package adengine

import (
	"fmt"
	"slices"

	"github.com/AdguardTeam/adengine/filterlist"
	"github.com/AdguardTeam/adengine/internal/lookup"
	"github.com/AdguardTeam/adengine/internal/wire"
	"github.com/AdguardTeam/adengine/rules"
)

// NetworkEngine is the engine that supports quick search over network rules.
type NetworkEngine struct {
	// ruleStorage is a storage for the network rules.  We try to avoid
	// keeping rules.NetworkRule structs in memory so instead of that we use
	// their indexes and retrieve them from the storage when it's needed.
	ruleStorage *filterlist.RuleStorage

	// lookupTables is the array of lookup tables which we need to speed up
	// the matching speed.  Note, that the order of lookup tables is very
	// important, we'll try to add rules to the faster table first.  If it's
	// not eligible for that lookup table, we'll then proceed to a slower
	// one.
	lookupTables []lookup.Table

	// idxs are the storage indexes of the rules added to the engine.
	idxs []int64

	// RulesCount is the count of rules added to the engine.
	RulesCount int
}

// NewNetworkEngine builds an instance of the network engine.  This method
// scans the specified rule storage and adds all rules.NetworkRule found there
// to the internal lookup tables.
func NewNetworkEngine(s *filterlist.RuleStorage) (engine *NetworkEngine) {
	engine = NewNetworkEngineSkipStorageScan(s)
	scanner := s.NewRuleStorageScanner()

	for scanner.Scan() {
		f, idx := scanner.Rule()
		rule, ok := f.(*rules.NetworkRule)
		if ok {
			engine.AddRule(rule, idx)
		}
	}

	return engine
}

// NewNetworkEngineSkipStorageScan creates a new instance of *NetworkEngine,
// but unlike NewNetworkEngine it does not scan the storage.
func NewNetworkEngineSkipStorageScan(s *filterlist.RuleStorage) (engine *NetworkEngine) {
	return &NetworkEngine{
		ruleStorage: s,
		lookupTables: []lookup.Table{
			lookup.NewHostnameTable(s),
			lookup.NewShortcutsTable(s),
			lookup.NewDomainsTable(s),
			lookup.NewSeqScanTable(s),
		},
	}
}

// MatchAll finds all rules matching the specified request regardless of the
// rule types.  It will find both allowlist and blocklist rules.  rx is used to
// compile the patterns of regular expression rules.
func (n *NetworkEngine) MatchAll(
	r *rules.Request,
	rx rules.RegexpCompiler,
) (result []*rules.NetworkRule) {
	for _, table := range n.lookupTables {
		result = append(result, table.MatchAll(r, rx)...)
	}

	return result
}

// AddRule adds rule to the network engine.
func (n *NetworkEngine) AddRule(f *rules.NetworkRule, storageIdx int64) {
	for _, table := range n.lookupTables {
		if table.TryAdd(f, storageIdx) {
			n.idxs = append(n.idxs, storageIdx)
			n.RulesCount++

			return
		}
	}
}

// ruleIdxs returns the sorted storage indexes of the rules of the engine.
func (n *NetworkEngine) ruleIdxs() (idxs []int64) {
	idxs = slices.Clone(n.idxs)
	slices.Sort(idxs)

	return idxs
}

// encodeTables writes the lookup tables in their order.
func (n *NetworkEngine) encodeTables(w *wire.Writer) {
	for _, table := range n.lookupTables {
		table.Encode(w)
	}
}

// decodeNetworkEngine creates a network engine for the rules of s with the
// lookup tables read from r.  idxs are the storage indexes of all network
// rules of s.
func decodeNetworkEngine(
	s *filterlist.RuleStorage,
	idxs []int64,
	r *wire.Reader,
) (n *NetworkEngine, err error) {
	n = NewNetworkEngineSkipStorageScan(s)
	for i, table := range n.lookupTables {
		err = table.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("lookup table at index %d: %w", i, err)
		}
	}

	n.idxs = idxs
	n.RulesCount = len(idxs)

	return n, nil
}

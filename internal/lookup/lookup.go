// Package lookup implements index structures that we use to improve matching
// speed in the engines.
package lookup

import (
	"maps"
	"slices"

	"github.com/AdguardTeam/adengine/internal/wire"
	"github.com/AdguardTeam/adengine/rules"
)

// Table is a common interface for all lookup tables.
type Table interface {
	// TryAdd attempts to add the rule to the lookup table.  It returns
	// true/false depending on whether the rule is eligible for this lookup
	// table.
	TryAdd(f *rules.NetworkRule, storageIdx int64) (ok bool)

	// MatchAll finds all matching rules from this lookup table.  rx is used
	// to compile the patterns of regular expression rules.
	MatchAll(r *rules.Request, rx rules.RegexpCompiler) (result []*rules.NetworkRule)

	// Encode writes the contents of the table to w.  The output only depends
	// on the set of the added rules, not on the order of addition.
	Encode(w *wire.Writer)

	// Decode reads the contents of the table written by Encode.  The rules
	// referenced by the table must be present in the table's storage.
	Decode(r *wire.Reader) (err error)
}

// encodeHashMap writes m with the keys in ascending order.
func encodeHashMap(w *wire.Writer, m map[uint32][]int64) {
	keys := slices.Sorted(maps.Keys(m))

	w.Uvarint(uint64(len(keys)))
	for _, k := range keys {
		idxs := slices.Clone(m[k])
		slices.Sort(idxs)

		w.Uvarint(uint64(k))
		w.Int64s(idxs)
	}
}

// decodeHashMap reads a map written by encodeHashMap.
func decodeHashMap(r *wire.Reader) (m map[uint32][]int64, err error) {
	n := r.Len()
	m = make(map[uint32][]int64, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		k := r.Uvarint()
		m[uint32(k)] = r.Int64s()
	}

	return m, r.Err()
}

// ruleIn checks if the particular rule instance is contained by the slice of
// pointers.
func ruleIn(rule *rules.NetworkRule, rs []*rules.NetworkRule) (ok bool) {
	return slices.Contains(rs, rule)
}

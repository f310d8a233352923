package lookup

import (
	"math"
	"strings"

	"github.com/AdguardTeam/adengine/filterlist"
	"github.com/AdguardTeam/adengine/filterutil"
	"github.com/AdguardTeam/adengine/internal/wire"
	"github.com/AdguardTeam/adengine/rules"
)

// shortcutLength is the length of the substrings the table is keyed by.
const shortcutLength = 5

// ShortcutsTable is a table that relies on the rule "shortcuts" to quickly
// find matching rules.  Here's how it works:
//
//  1. We extract from the rule the longest substring without special
//     characters from, this string is called a "shortcut".
//  2. We take a part of it of length "shortcutLength" and put it to the
//     internal hashmap.
//  3. When we match a request, we take all substrings of length
//     "shortcutsLength" from it and check if there're any rules in the
//     hashmap.
//
// Note that only the rules with a shortcut are eligible for this table.
type ShortcutsTable struct {
	// ruleStorage is the storage for the network filtering rules.
	ruleStorage *filterlist.RuleStorage

	// shortcutsLookupTable is the map where the key is the hash of the
	// shortcut and value is a list of rules' indexes.
	shortcutsLookupTable map[uint32][]int64

	// shortcutsHistogram helps us choose the best shortcut for the shortcuts
	// lookup table.
	shortcutsHistogram map[uint32]int
}

// type check
var _ Table = (*ShortcutsTable)(nil)

// NewShortcutsTable creates a new instance of the ShortcutsTable.
func NewShortcutsTable(rs *filterlist.RuleStorage) (s *ShortcutsTable) {
	return &ShortcutsTable{
		ruleStorage:          rs,
		shortcutsLookupTable: map[uint32][]int64{},
		shortcutsHistogram:   map[uint32]int{},
	}
}

// TryAdd implements the [Table] interface for *ShortcutsTable.
func (s *ShortcutsTable) TryAdd(f *rules.NetworkRule, storageIdx int64) (ok bool) {
	shortcuts := getRuleShortcuts(f)
	if len(shortcuts) == 0 {
		return false
	}

	// Find the applicable shortcut, the least used one.
	var shortcutHash uint32
	minCount := math.MaxInt32
	for _, shortcutToCheck := range shortcuts {
		hash := filterutil.FastHash(shortcutToCheck)
		count := s.shortcutsHistogram[hash]
		if count < minCount {
			minCount = count
			shortcutHash = hash
		}
	}

	s.shortcutsHistogram[shortcutHash] = minCount + 1
	s.shortcutsLookupTable[shortcutHash] = append(s.shortcutsLookupTable[shortcutHash], storageIdx)

	return true
}

// MatchAll implements the [Table] interface for *ShortcutsTable.
func (s *ShortcutsTable) MatchAll(
	r *rules.Request,
	rx rules.RegexpCompiler,
) (result []*rules.NetworkRule) {
	for i := 0; i <= len(r.URLLowerCase)-shortcutLength; i++ {
		// The shortcutsLookupTable contains the shortcuts of rules of fixed
		// length and rules itself.  Go through all the substrings of passed
		// URL having such length to find matching rules.
		hash := filterutil.FastHashBetween(r.URLLowerCase, i, i+shortcutLength)
		matchingRules, ok := s.shortcutsLookupTable[hash]
		if !ok {
			continue
		}

		for _, ruleIdx := range matchingRules {
			rule := s.ruleStorage.RetrieveNetworkRule(ruleIdx)

			// Make sure that the same rule isn't returned twice.  This
			// happens when the URL has a repeating pattern.
			if rule == nil || ruleIn(rule, result) || !rule.Match(r, rx) {
				continue
			}

			result = append(result, rule)
		}
	}

	return result
}

// Encode implements the [Table] interface for *ShortcutsTable.  The histogram
// is only needed while the table is being built, so it is not written.
func (s *ShortcutsTable) Encode(w *wire.Writer) {
	encodeHashMap(w, s.shortcutsLookupTable)
}

// Decode implements the [Table] interface for *ShortcutsTable.
func (s *ShortcutsTable) Decode(r *wire.Reader) (err error) {
	s.shortcutsLookupTable, err = decodeHashMap(r)

	return err
}

// getRuleShortcuts returns a list of shortcuts that can be used for the lookup
// table.
func getRuleShortcuts(f *rules.NetworkRule) (shortcuts []string) {
	if len(f.Shortcut) < shortcutLength || isAnyURLShortcut(f) {
		return nil
	}

	for i := 0; i <= len(f.Shortcut)-shortcutLength; i++ {
		shortcuts = append(shortcuts, f.Shortcut[i:i+shortcutLength])
	}

	return shortcuts
}

// isAnyURLShortcut checks if the rule potentially matches too many URLs.  We'd
// better use another type of lookup table for this kind of rules.
func isAnyURLShortcut(f *rules.NetworkRule) (ok bool) {
	switch shLen := len(f.Shortcut); {
	case
		shLen < len("ws://")+1 && strings.HasPrefix(f.Shortcut, "ws:"),
		shLen < len("wss://")+1 && strings.HasPrefix(f.Shortcut, "wss:"),
		shLen < len("|wss://")+1 && strings.HasPrefix(f.Shortcut, "|ws"),
		shLen < len("https://")+1 && strings.HasPrefix(f.Shortcut, "http"),
		shLen < len("|https://")+1 && strings.HasPrefix(f.Shortcut, "|http"):
		return true
	default:
		return false
	}
}

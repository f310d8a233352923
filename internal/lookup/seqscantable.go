package lookup

import (
	"fmt"
	"slices"

	"github.com/AdguardTeam/adengine/filterlist"
	"github.com/AdguardTeam/adengine/internal/wire"
	"github.com/AdguardTeam/adengine/rules"
)

// SeqScanTable is basically just a list of network rules that are scanned
// sequentially.  Here we put the rules that are not eligible for other tables.
type SeqScanTable struct {
	ruleStorage *filterlist.RuleStorage

	// texts is used to skip the duplicates of the rules already added.
	texts map[string]struct{}

	rules []*rules.NetworkRule
	idxs  []int64
}

// type check
var _ Table = (*SeqScanTable)(nil)

// NewSeqScanTable creates a new instance of the SeqScanTable.  rs is only
// used when the table is decoded.
func NewSeqScanTable(rs *filterlist.RuleStorage) (s *SeqScanTable) {
	return &SeqScanTable{
		ruleStorage: rs,
		texts:       map[string]struct{}{},
	}
}

// TryAdd implements the [Table] interface for *SeqScanTable.
func (s *SeqScanTable) TryAdd(f *rules.NetworkRule, storageIdx int64) (ok bool) {
	if _, ok = s.texts[f.RuleText]; ok {
		return false
	}

	s.texts[f.RuleText] = struct{}{}
	s.rules = append(s.rules, f)
	s.idxs = append(s.idxs, storageIdx)

	return true
}

// MatchAll implements the [Table] interface for *SeqScanTable.
func (s *SeqScanTable) MatchAll(
	r *rules.Request,
	rx rules.RegexpCompiler,
) (result []*rules.NetworkRule) {
	for _, rule := range s.rules {
		if rule.Match(r, rx) {
			result = append(result, rule)
		}
	}

	return result
}

// Encode implements the [Table] interface for *SeqScanTable.
func (s *SeqScanTable) Encode(w *wire.Writer) {
	idxs := slices.Clone(s.idxs)
	slices.Sort(idxs)

	w.Int64s(idxs)
}

// Decode implements the [Table] interface for *SeqScanTable.  The rules are
// kept in the order of their indexes.
func (s *SeqScanTable) Decode(r *wire.Reader) (err error) {
	idxs := r.Int64s()
	if err = r.Err(); err != nil {
		return err
	}

	s.rules = make([]*rules.NetworkRule, 0, len(idxs))
	s.idxs = idxs
	s.texts = make(map[string]struct{}, len(idxs))
	for _, idx := range idxs {
		rule := s.ruleStorage.RetrieveNetworkRule(idx)
		if rule == nil {
			return fmt.Errorf("seq scan table: no network rule at index %d", idx)
		}

		s.texts[rule.RuleText] = struct{}{}
		s.rules = append(s.rules, rule)
	}

	return nil
}

package lookup

import (
	"fmt"
	"slices"

	"github.com/AdguardTeam/adengine/filterlist"
	"github.com/AdguardTeam/adengine/filterutil"
	"github.com/AdguardTeam/adengine/internal/wire"
	"github.com/AdguardTeam/adengine/rules"
	iradix "github.com/hashicorp/go-immutable-radix"
)

// HostnameTable is a lookup table for the rules anchored to a hostname, such
// as "||ads.example.org^".  The hostnames are stored with their labels
// reversed, "org.example.ads", so that the rules for the request's hostname
// and all its parent domains lie on a single path of the radix tree.
type HostnameTable struct {
	ruleStorage *filterlist.RuleStorage

	// tree maps reversed hostnames to the slices of rules' indexes.
	tree *iradix.Tree
}

// type check
var _ Table = (*HostnameTable)(nil)

// NewHostnameTable creates a new instance of the HostnameTable.
func NewHostnameTable(rs *filterlist.RuleStorage) (s *HostnameTable) {
	return &HostnameTable{
		ruleStorage: rs,
		tree:        iradix.New(),
	}
}

// TryAdd implements the [Table] interface for *HostnameTable.
func (h *HostnameTable) TryAdd(f *rules.NetworkRule, storageIdx int64) (ok bool) {
	host := f.HostAnchor()
	if host == "" {
		return false
	}

	key := []byte(filterutil.ReverseLabels(host))

	var idxs []int64
	if v, found := h.tree.Get(key); found {
		idxs = v.([]int64)
	}

	h.tree, _, _ = h.tree.Insert(key, append(idxs, storageIdx))

	return true
}

// MatchAll implements the [Table] interface for *HostnameTable.
func (h *HostnameTable) MatchAll(
	r *rules.Request,
	rx rules.RegexpCompiler,
) (result []*rules.NetworkRule) {
	if r.Hostname == "" {
		return nil
	}

	path := filterutil.ReverseLabels(r.Hostname)
	h.tree.Root().WalkPath([]byte(path), func(k []byte, v any) (stop bool) {
		// Skip the keys that end in the middle of a label, for example
		// "org.exam" for "org.example".
		if len(k) < len(path) && path[len(k)] != '.' {
			return false
		}

		for _, idx := range v.([]int64) {
			rule := h.ruleStorage.RetrieveNetworkRule(idx)
			if rule != nil && rule.Match(r, rx) {
				result = append(result, rule)
			}
		}

		return false
	})

	return result
}

// Len returns the number of distinct hostnames in the table.
func (h *HostnameTable) Len() (n int) {
	return h.tree.Len()
}

// Encode implements the [Table] interface for *HostnameTable.  The tree is
// walked in the lexical order of its keys.
func (h *HostnameTable) Encode(w *wire.Writer) {
	w.Uvarint(uint64(h.tree.Len()))
	h.tree.Root().Walk(func(k []byte, v any) (stop bool) {
		idxs := slices.Clone(v.([]int64))
		slices.Sort(idxs)

		w.String(string(k))
		w.Int64s(idxs)

		return false
	})
}

// Decode implements the [Table] interface for *HostnameTable.
func (h *HostnameTable) Decode(r *wire.Reader) (err error) {
	n := r.Len()
	txn := iradix.New().Txn()
	for i := 0; i < n && r.Err() == nil; i++ {
		key := r.String()
		idxs := r.Int64s()
		if r.Err() != nil {
			break
		} else if key == "" || len(idxs) == 0 {
			return fmt.Errorf("hostname table: bad entry %d", i)
		}

		txn.Insert([]byte(key), idxs)
	}

	if err = r.Err(); err != nil {
		return err
	}

	h.tree = txn.Commit()

	return nil
}

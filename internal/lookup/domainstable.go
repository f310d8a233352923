package lookup

import (
	"slices"
	"strings"

	"github.com/AdguardTeam/adengine/filterlist"
	"github.com/AdguardTeam/adengine/filterutil"
	"github.com/AdguardTeam/adengine/internal/wire"
	"github.com/AdguardTeam/adengine/rules"
)

// DomainsTable is a lookup table that uses domains from the $domain modifier
// to speed up the rules search.  Only the rules with $domain modifier are
// eligible for this lookup table.
type DomainsTable struct {
	// ruleStorage is the storage for the network filtering rules.
	ruleStorage *filterlist.RuleStorage

	// domainsLookupTable is the domain lookup table.  Key is the domain name
	// hash.
	domainsLookupTable map[uint32][]int64
}

// type check
var _ Table = (*DomainsTable)(nil)

// NewDomainsTable creates a new instance of the DomainsTable.
func NewDomainsTable(rs *filterlist.RuleStorage) (s *DomainsTable) {
	return &DomainsTable{
		ruleStorage:        rs,
		domainsLookupTable: map[uint32][]int64{},
	}
}

// TryAdd implements the [Table] interface for *DomainsTable.
func (d *DomainsTable) TryAdd(f *rules.NetworkRule, storageIdx int64) (ok bool) {
	permittedDomains := f.GetPermittedDomains()
	if len(permittedDomains) == 0 || slices.ContainsFunc(permittedDomains, isWildcardDomain) {
		// Wildcard domains, such as "example.*", are never among the
		// subdomains of a source hostname.
		return false
	}

	for _, domain := range permittedDomains {
		hash := filterutil.FastHash(domain)
		d.domainsLookupTable[hash] = append(d.domainsLookupTable[hash], storageIdx)
	}

	return true
}

// isWildcardDomain returns true if domain ends with the ".*" top-level domain
// wildcard.
func isWildcardDomain(domain string) (ok bool) {
	return strings.HasSuffix(domain, ".*")
}

// MatchAll implements the [Table] interface for *DomainsTable.
func (d *DomainsTable) MatchAll(
	r *rules.Request,
	rx rules.RegexpCompiler,
) (result []*rules.NetworkRule) {
	if r.SourceHostname == "" {
		return nil
	}

	for _, domain := range filterutil.Subdomains(r.SourceHostname) {
		matchingRules, ok := d.domainsLookupTable[filterutil.FastHash(domain)]
		if !ok {
			continue
		}

		for _, ruleIdx := range matchingRules {
			rule := d.ruleStorage.RetrieveNetworkRule(ruleIdx)
			if rule != nil && !ruleIn(rule, result) && rule.Match(r, rx) {
				result = append(result, rule)
			}
		}
	}

	return result
}

// Encode implements the [Table] interface for *DomainsTable.
func (d *DomainsTable) Encode(w *wire.Writer) {
	encodeHashMap(w, d.domainsLookupTable)
}

// Decode implements the [Table] interface for *DomainsTable.
func (d *DomainsTable) Decode(r *wire.Reader) (err error) {
	d.domainsLookupTable, err = decodeHashMap(r)

	return err
}

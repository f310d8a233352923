package filterlist

import (
	"github.com/AdguardTeam/adengine/rules"
)

// StorageIdx converts the list identifier and the index of the rule inside
// that list into the index of the rule in the storage, which is also used as
// the rule identifier.
func StorageIdx(listID int, ruleIdx int) (idx int64) {
	return int64(listID)<<32 | int64(ruleIdx)&0xFFFFFFFF
}

// StorageIdxToRuleListIdx converts the storage index of a rule back into the
// list identifier and the index of the rule inside that list.
func StorageIdxToRuleListIdx(storageIdx int64) (listID int, ruleIdx int) {
	return int(storageIdx >> 32), int(uint32(storageIdx))
}

// RuleStorageScanner scans multiple RuleScanner instances.  The rule index is
// built from the rule index in the list and the list ID, see [StorageIdx].
type RuleStorageScanner struct {
	// Scanners is the list of list scanners backing this combined scanner.
	Scanners []*RuleScanner

	currentScanner    *RuleScanner
	currentScannerIdx int
}

// Scan advances the RuleStorageScanner to the next rule, which will then be
// available through the Rule method.  It returns false when the scan stops,
// either by reaching the end of the input or an error.
func (s *RuleStorageScanner) Scan() (ok bool) {
	if len(s.Scanners) == 0 {
		return false
	}

	if s.currentScanner == nil {
		s.currentScannerIdx = 0
		s.currentScanner = s.Scanners[s.currentScannerIdx]
	}

	for {
		if s.currentScanner.Scan() {
			return true
		}

		// Take the next scanner or just return false if there's nothing
		// more.
		if s.currentScannerIdx == len(s.Scanners)-1 {
			return false
		}

		s.currentScannerIdx++
		s.currentScanner = s.Scanners[s.currentScannerIdx]
	}
}

// Rule returns the most recent rule generated by a call to Scan, and the index
// of this rule.  See [StorageIdx] for the index format.
func (s *RuleStorageScanner) Rule() (r rules.Rule, idx int64) {
	if s.currentScanner == nil {
		return nil, 0
	}

	r, ruleIdx := s.currentScanner.Rule()
	if r == nil {
		return nil, 0
	}

	return r, StorageIdx(r.GetFilterListID(), ruleIdx)
}

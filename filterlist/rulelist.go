// Package filterlist contains the rule lists, the scanners that parse them and
// the storage that gives every rule a stable int64 identifier.
package filterlist

import (
	"fmt"
	"strings"

	"github.com/AdguardTeam/adengine/rules"
	"github.com/AdguardTeam/golibs/errors"
)

// ErrRuleRetrieval is returned when the rule cannot be retrieved by
// RetrieveRule.
const ErrRuleRetrieval errors.Error = "cannot retrieve the rule"

// RuleList represents a set of filtering rules.
type RuleList interface {
	// GetID returns the rule list identifier.
	GetID() (id int)

	// NewScanner creates a new scanner that reads the list contents.
	NewScanner() (scanner *RuleScanner)

	// RetrieveRule returns a rule by its index.
	RetrieveRule(ruleIdx int) (r rules.Rule, err error)

	// Close closes the underlying resources.
	Close() (err error)
}

// StringRuleList represents a string-based rule list.
type StringRuleList struct {
	// RulesText is the contents of the list, one rule per line.
	RulesText string

	// ID is the rule list identifier.
	ID int

	// IgnoreCosmetic tells whether to ignore cosmetic rules or not.
	IgnoreCosmetic bool
}

// type check
var _ RuleList = (*StringRuleList)(nil)

// GetID implements the [RuleList] interface for *StringRuleList.
func (l *StringRuleList) GetID() (id int) {
	return l.ID
}

// NewScanner implements the [RuleList] interface for *StringRuleList.
func (l *StringRuleList) NewScanner() (sc *RuleScanner) {
	return NewRuleScanner(strings.NewReader(l.RulesText), l.ID, l.IgnoreCosmetic)
}

// RetrieveRule implements the [RuleList] interface for *StringRuleList.  If
// there's no rule by that index or rule is invalid, it will return an error.
func (l *StringRuleList) RetrieveRule(ruleIdx int) (r rules.Rule, err error) {
	if ruleIdx < 0 || ruleIdx >= len(l.RulesText) {
		return nil, ErrRuleRetrieval
	}

	endOfLine := strings.IndexByte(l.RulesText[ruleIdx:], '\n')
	if endOfLine == -1 {
		endOfLine = len(l.RulesText)
	} else {
		endOfLine += ruleIdx
	}

	line := strings.TrimSpace(l.RulesText[ruleIdx:endOfLine])
	if line == "" {
		return nil, ErrRuleRetrieval
	}

	r, err = rules.NewRule(line, l.ID)
	if err != nil {
		return nil, err
	} else if r == nil {
		return nil, ErrRuleRetrieval
	}

	setRuleID(r, StorageIdx(l.ID, ruleIdx))

	return r, nil
}

// Close implements the [RuleList] interface for *StringRuleList.
func (l *StringRuleList) Close() (err error) {
	return nil
}

// ParsedRuleList is a rule list built from already parsed rules, for example
// the ones read from an engine snapshot.  Rules are indexed by the lower half
// of their storage index.
type ParsedRuleList struct {
	rules map[int]rules.Rule
	id    int
}

// type check
var _ RuleList = (*ParsedRuleList)(nil)

// NewParsedRuleList returns a list with the given id containing rs.  The
// storage indexes of the rules must belong to the list.
func NewParsedRuleList(id int, rs []rules.Rule) (l *ParsedRuleList, err error) {
	l = &ParsedRuleList{
		rules: make(map[int]rules.Rule, len(rs)),
		id:    id,
	}

	for _, r := range rs {
		listID, ruleIdx := StorageIdxToRuleListIdx(ruleID(r))
		if listID != id || r.GetFilterListID() != id {
			return nil, fmt.Errorf("rule %q does not belong to list %d", r.Text(), id)
		}

		l.rules[ruleIdx] = r
	}

	return l, nil
}

// GetID implements the [RuleList] interface for *ParsedRuleList.
func (l *ParsedRuleList) GetID() (id int) {
	return l.id
}

// NewScanner implements the [RuleList] interface for *ParsedRuleList.  The
// scanner returns the rules in the order of their indexes.
func (l *ParsedRuleList) NewScanner() (sc *RuleScanner) {
	return newParsedRuleScanner(l.rules)
}

// RetrieveRule implements the [RuleList] interface for *ParsedRuleList.
func (l *ParsedRuleList) RetrieveRule(ruleIdx int) (r rules.Rule, err error) {
	r, ok := l.rules[ruleIdx]
	if !ok {
		return nil, ErrRuleRetrieval
	}

	return r, nil
}

// Close implements the [RuleList] interface for *ParsedRuleList.
func (l *ParsedRuleList) Close() (err error) {
	return nil
}

// setRuleID sets the storage index of the rules that have one.
func setRuleID(r rules.Rule, id int64) {
	switch r := r.(type) {
	case *rules.NetworkRule:
		r.ID = id
	case *rules.CosmeticRule:
		r.ID = id
	}
}

// ruleID returns the storage index of r.
func ruleID(r rules.Rule) (id int64) {
	switch r := r.(type) {
	case *rules.NetworkRule:
		return r.ID
	case *rules.CosmeticRule:
		return r.ID
	default:
		return -1
	}
}

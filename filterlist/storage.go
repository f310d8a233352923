package filterlist

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/AdguardTeam/adengine/rules"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// RuleStorage is an abstraction that combines several rule lists.  It can be
// scanned using RuleStorageScanner, and also it allows retrieving rules by its
// index.
//
// The idea is to keep rules in a serialized format (even original format in
// the case of [StringRuleList]) and create them in a lazy manner only when we
// really need them.  When the filtering engine is being initialized, we need
// to scan the rule lists once in order to fill up the lookup tables.  We use
// rule indexes as a unique rule identifier instead of the rule itself.  The
// rule is created (see RetrieveRule) only when there's a chance that it's
// needed.
//
// Rule index is an int64 value that actually consists of two int32 values:
// one is the rule list identifier, and the second is the index of the rule
// inside of that list.
type RuleStorage struct {
	logger *slog.Logger

	// cacheMu protects cache.
	cacheMu *sync.Mutex

	// cache with the rules which were retrieved.
	cache map[int64]rules.Rule

	// listsMap is a map with rule lists.  map key is the list ID.
	listsMap map[int]RuleList

	// lists is an array of rules lists which can be accessed using
	// RuleStorage.
	lists []RuleList
}

// NewRuleStorage creates a new instance of the RuleStorage and validates the
// list of rules specified.  logger is used to report the rules that cannot be
// parsed or retrieved, a nil logger discards the messages.
func NewRuleStorage(logger *slog.Logger, lists []RuleList) (s *RuleStorage, err error) {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}

	listsMap := make(map[int]RuleList, len(lists))
	for i, list := range lists {
		id := list.GetID()
		if _, ok := listsMap[id]; ok {
			return nil, fmt.Errorf("at index %d: duplicate list id %d", i, id)
		}

		listsMap[id] = list
	}

	return &RuleStorage{
		logger:   logger,
		cacheMu:  &sync.Mutex{},
		cache:    map[int64]rules.Rule{},
		listsMap: listsMap,
		lists:    lists,
	}, nil
}

// NewRuleStorageScanner creates a new instance of RuleStorageScanner.  It can
// be used to read and parse all the storage contents.
func (s *RuleStorage) NewRuleStorageScanner() (sc *RuleStorageScanner) {
	var scanners []*RuleScanner
	for _, list := range s.lists {
		scanner := list.NewScanner()
		scanner.SetLogger(s.logger)
		scanners = append(scanners, scanner)
	}

	return &RuleStorageScanner{
		Scanners: scanners,
	}
}

// RetrieveRule looks for the filtering rule in this storage.  storageIdx is
// the lookup index that you can get from the rule storage scanner.
func (s *RuleStorage) RetrieveRule(storageIdx int64) (r rules.Rule, err error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	r, ok := s.cache[storageIdx]
	if ok {
		return r, nil
	}

	listID, ruleIdx := StorageIdxToRuleListIdx(storageIdx)

	list, ok := s.listsMap[listID]
	if !ok {
		return nil, fmt.Errorf("list %d does not exist", listID)
	}

	r, err = list.RetrieveRule(ruleIdx)
	if err != nil {
		return nil, fmt.Errorf("retrieving rule %d from list %d: %w", ruleIdx, listID, err)
	}

	s.cache[storageIdx] = r

	return r, nil
}

// RetrieveNetworkRule is a helper method that retrieves a network rule from
// the storage.  It returns a pointer to the rule or nil in any other case (not
// found or error).
func (s *RuleStorage) RetrieveNetworkRule(idx int64) (nr *rules.NetworkRule) {
	r, err := s.RetrieveRule(idx)
	if err != nil {
		s.logger.Error("retrieving network rule", "idx", idx, slogutil.KeyError, err)

		return nil
	}

	nr, _ = r.(*rules.NetworkRule)

	return nr
}

// RetrieveCosmeticRule is like [RuleStorage.RetrieveNetworkRule] but for the
// cosmetic rules.
func (s *RuleStorage) RetrieveCosmeticRule(idx int64) (cr *rules.CosmeticRule) {
	r, err := s.RetrieveRule(idx)
	if err != nil {
		s.logger.Error("retrieving cosmetic rule", "idx", idx, slogutil.KeyError, err)

		return nil
	}

	cr, _ = r.(*rules.CosmeticRule)

	return cr
}

// Lists returns the rule lists of the storage in the order they were added.
func (s *RuleStorage) Lists() (lists []RuleList) {
	return s.lists
}

// Close closes the storage instance.
func (s *RuleStorage) Close() (err error) {
	var errs []error
	for _, l := range s.lists {
		errs = append(errs, l.Close())
	}

	return errors.Annotate(errors.Join(errs...), "closing rule lists: %w")
}

// GetCacheSize returns the size of the in-memory rules cache.
func (s *RuleStorage) GetCacheSize() (sz int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	return len(s.cache)
}

package lookup_test

import (
	"testing"

	"github.com/AdguardTeam/adengine/filterlist"
	"github.com/AdguardTeam/adengine/internal/lookup"
	"github.com/AdguardTeam/adengine/internal/wire"
	"github.com/AdguardTeam/adengine/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Common domains for tests.
const (
	testDomain      = "domain.example"
	testDomainNoMod = "nomod.domain.example"
	testDomainSub   = "sub.domain.example"
)

// Common rules for tests.
const (
	testRule                = "||" + testDomain + "^"
	testRuleNoDomain        = "||" + testDomainNoMod + "^"
	testRuleNoShortcutsTiny = "||tiny^"
	testRuleNoShortcutsURL  = "|ws://^"
	testRuleWithDomain      = "/banner/$domain=" + testDomain
	testRulePath            = "/ad-frame/*/banner.js"
)

// Common text rules for tests.
const (
	testRuleText                = testRule + "\n"
	testRuleTextNoDomain        = testRuleNoDomain + "\n"
	testRuleTextNoShortcutsTiny = testRuleNoShortcutsTiny + "\n"
	testRuleTextNoShortcutsURL  = testRuleNoShortcutsURL + "\n"
	testRuleTextWithDomain      = testRuleWithDomain + "\n"
	testRuleTextPath            = testRulePath + "\n"

	testRuleTextAll = testRuleText +
		testRuleTextNoDomain +
		testRuleTextNoShortcutsTiny +
		testRuleTextNoShortcutsURL +
		testRuleTextWithDomain +
		testRuleTextPath
)

// Common URL strings for tests.
const (
	testURLStrNoDomain      = "https://" + testDomainNoMod + "/"
	testURLStrNoMatch       = "https://no-match.example/"
	testURLStrWithDomain    = "https://" + testDomain + "/"
	testURLStrWithSubdomain = "https://" + testDomainSub + "/"
	testURLStrBanner        = "https://cdn.example/banner/1.png"
	testURLStrPath          = "https://cdn.example/ad-frame/x/banner.js"
)

// newStorage is a helper that creates a rule storage for tests with the given
// rule text.
func newStorage(tb testing.TB, text string) (s *filterlist.RuleStorage) {
	tb.Helper()

	l := &filterlist.StringRuleList{
		ID:        1,
		RulesText: text,
	}

	s, err := filterlist.NewRuleStorage(nil, []filterlist.RuleList{l})
	require.NoError(tb, err)

	return s
}

// assertMatch is a helper for matching a single rule in the table or, if
// wantRuleText is empty, that no rules are returned.
func assertMatch(
	tb testing.TB,
	tbl lookup.Table,
	r *rules.Request,
	wantRuleText string,
) {
	tb.Helper()

	gotRules := tbl.MatchAll(r, nil)

	if wantRuleText == "" {
		assert.Empty(tb, gotRules)

		return
	}

	require.Len(tb, gotRules, 1)

	assert.Equal(tb, wantRuleText, gotRules[0].RuleText)
}

// assertRuleIsAdded is a helper to assert if a single rule has been added to
// tbl.
func assertRuleIsAdded(
	tb testing.TB,
	tbl lookup.Table,
	s *filterlist.RuleStorage,
	want assert.BoolAssertionFunc,
) {
	tb.Helper()

	var num int
	sc := s.NewRuleStorageScanner()
	for sc.Scan() {
		num++

		r, idx := sc.Rule()
		want(tb, tbl.TryAdd(r.(*rules.NetworkRule), idx))
	}

	assert.Equal(tb, 1, num)
}

// loadTable is a helper that loads rules from s to tbl.
func loadTable(tb testing.TB, tbl lookup.Table, s *filterlist.RuleStorage) {
	tb.Helper()

	sc := s.NewRuleStorageScanner()
	for sc.Scan() {
		r, idx := sc.Rule()
		if nr, ok := r.(*rules.NetworkRule); ok {
			_ = tbl.TryAdd(nr, idx)
		}
	}
}

// assertRoundTrip encodes tbl, decodes the data into dec, and checks that the
// encoding of dec is the same.
func assertRoundTrip(tb testing.TB, tbl, dec lookup.Table) {
	tb.Helper()

	w := wire.NewWriter(0)
	tbl.Encode(w)

	data := w.Bytes()
	require.NoError(tb, dec.Decode(wire.NewReader(data)))

	w2 := wire.NewWriter(0)
	dec.Encode(w2)

	assert.Equal(tb, data, w2.Bytes())
}

// assertDecodeTruncated checks that dec fails to decode any strict prefix of
// the encoding of tbl.
func assertDecodeTruncated(tb testing.TB, tbl lookup.Table, newTable func() lookup.Table) {
	tb.Helper()

	w := wire.NewWriter(0)
	tbl.Encode(w)

	data := w.Bytes()
	require.NotEmpty(tb, data)

	for i := range len(data) {
		err := newTable().Decode(wire.NewReader(data[:i]))
		assert.Errorf(tb, err, "prefix of length %d", i)
	}
}

// wireOf returns a reader of the encoding of tbl.
func wireOf(tb testing.TB, tbl lookup.Table) (r *wire.Reader) {
	tb.Helper()

	w := wire.NewWriter(0)
	tbl.Encode(w)

	return wire.NewReader(w.Bytes())
}

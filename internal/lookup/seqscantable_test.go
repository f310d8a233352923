package lookup_test

import (
	"testing"

	"github.com/AdguardTeam/adengine/internal/lookup"
	"github.com/AdguardTeam/adengine/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Rules that only the sequential scan table accepts.
const (
	testRuleAnyHTTPS = "|https://*^$third-party"
	testRuleRegex    = "/ad[0-9]+\\.js/"

	testRuleTextSeqScan = testRuleAnyHTTPS + "\n" + testRuleRegex + "\n"
)

func TestSeqScanTable_TryAdd(t *testing.T) {
	t.Parallel()

	s := newStorage(t, testRuleTextNoShortcutsURL)
	tbl := lookup.NewSeqScanTable(s)
	assertRuleIsAdded(t, tbl, s, assert.True)

	// The same rule is not added twice.
	assertRuleIsAdded(t, tbl, s, assert.False)
}

func TestSeqScanTable_MatchAll(t *testing.T) {
	t.Parallel()

	s := newStorage(t, testRuleTextSeqScan)
	tbl := lookup.NewSeqScanTable(s)
	loadTable(t, tbl, s)

	testCases := []struct {
		name         string
		urlStr       string
		srcHost      string
		wantRuleText string
	}{{
		name:         "no_match",
		urlStr:       testURLStrNoMatch,
		srcHost:      "",
		wantRuleText: "",
	}, {
		name:         "third_party",
		urlStr:       testURLStrNoMatch,
		srcHost:      "other.example",
		wantRuleText: testRuleAnyHTTPS,
	}, {
		name:         "regex",
		urlStr:       "https://cdn.example/ad12.js",
		srcHost:      "",
		wantRuleText: testRuleRegex,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := rules.NewRequest(tc.urlStr, tc.srcHost, rules.TypeOther)
			assertMatch(t, tbl, r, tc.wantRuleText)
		})
	}
}

func TestSeqScanTable_Encode(t *testing.T) {
	t.Parallel()

	s := newStorage(t, testRuleTextSeqScan)
	tbl := lookup.NewSeqScanTable(s)
	loadTable(t, tbl, s)

	dec := lookup.NewSeqScanTable(s)
	assertRoundTrip(t, tbl, dec)

	r := rules.NewRequest(testURLStrNoMatch, "other.example", rules.TypeOther)
	assertMatch(t, dec, r, testRuleAnyHTTPS)

	assertDecodeTruncated(t, tbl, func() (tbl lookup.Table) {
		return lookup.NewSeqScanTable(s)
	})

	t.Run("missing_rule", func(t *testing.T) {
		other := newStorage(t, "")
		err := lookup.NewSeqScanTable(other).Decode(wireOf(t, tbl))
		require.Error(t, err)
	})
}

package lookup_test

import (
	"testing"

	"github.com/AdguardTeam/adengine/internal/lookup"
	"github.com/AdguardTeam/adengine/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostnameTable_TryAdd(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		want assert.BoolAssertionFunc
		name string
		text string
	}{{
		want: assert.True,
		name: "anchored",
		text: testRuleText,
	}, {
		want: assert.True,
		name: "anchored_path",
		text: "||" + testDomain + "/ads/*\n",
	}, {
		want: assert.True,
		name: "tiny",
		text: testRuleTextNoShortcutsTiny,
	}, {
		want: assert.False,
		name: "url",
		text: testRuleTextNoShortcutsURL,
	}, {
		want: assert.False,
		name: "wildcard_host",
		text: "||ads.*.example^\n",
	}, {
		want: assert.False,
		name: "not_anchored",
		text: testRuleTextPath,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := newStorage(t, tc.text)
			tbl := lookup.NewHostnameTable(s)
			assertRuleIsAdded(t, tbl, s, tc.want)
		})
	}
}

func TestHostnameTable_MatchAll(t *testing.T) {
	t.Parallel()

	s := newStorage(t, testRuleText+testRuleTextNoShortcutsTiny)
	tbl := lookup.NewHostnameTable(s)
	loadTable(t, tbl, s)

	require.Equal(t, 2, tbl.Len())

	testCases := []struct {
		name         string
		urlStr       string
		wantRuleText string
	}{{
		name:         "exact",
		urlStr:       testURLStrWithDomain,
		wantRuleText: testRule,
	}, {
		name:         "subdomain",
		urlStr:       testURLStrWithSubdomain,
		wantRuleText: testRule,
	}, {
		name:         "label_boundary",
		urlStr:       "https://otherdomain.example/",
		wantRuleText: "",
	}, {
		name:         "longer_label",
		urlStr:       "https://domain.examples/",
		wantRuleText: "",
	}, {
		name:         "no_match",
		urlStr:       testURLStrNoMatch,
		wantRuleText: "",
	}, {
		name:         "single_label",
		urlStr:       "http://tiny/",
		wantRuleText: testRuleNoShortcutsTiny,
	}, {
		name:         "non_web_scheme",
		urlStr:       "ftp://" + testDomain + "/",
		wantRuleText: "",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := rules.NewRequest(tc.urlStr, "", rules.TypeOther)
			assertMatch(t, tbl, r, tc.wantRuleText)
		})
	}
}

func TestHostnameTable_MatchAll_parents(t *testing.T) {
	t.Parallel()

	s := newStorage(t, "||example.org^\n||ads.example.org^\n||example.org^$script\n")
	tbl := lookup.NewHostnameTable(s)
	loadTable(t, tbl, s)

	r := rules.NewRequest("https://x.ads.example.org/a.js", "", rules.TypeScript)

	var got []string
	for _, f := range tbl.MatchAll(r, nil) {
		got = append(got, f.RuleText)
	}

	assert.ElementsMatch(t, []string{
		"||example.org^",
		"||ads.example.org^",
		"||example.org^$script",
	}, got)
}

func TestHostnameTable_Encode(t *testing.T) {
	t.Parallel()

	s1 := newStorage(t, "||b.example^\n||a.example^\n||c.a.example^\n")
	tbl1 := lookup.NewHostnameTable(s1)
	loadTable(t, tbl1, s1)

	dec := lookup.NewHostnameTable(s1)
	assertRoundTrip(t, tbl1, dec)

	r := rules.NewRequest("https://c.a.example/", "", rules.TypeOther)
	got := dec.MatchAll(r, nil)
	assert.Len(t, got, 2)

	assertDecodeTruncated(t, tbl1, func() (tbl lookup.Table) {
		return lookup.NewHostnameTable(s1)
	})
}

func BenchmarkHostnameTable_MatchAll(b *testing.B) {
	s := newStorage(b, testRuleTextAll)
	tbl := lookup.NewHostnameTable(s)
	loadTable(b, tbl, s)

	r := rules.NewRequest(testURLStrWithSubdomain, "", rules.TypeOther)

	var gotRules []*rules.NetworkRule

	b.ReportAllocs()
	for b.Loop() {
		gotRules = tbl.MatchAll(r, nil)
	}

	require.Len(b, gotRules, 1)
}

package adengine

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/AdguardTeam/adengine/filterlist"
	"github.com/AdguardTeam/adengine/rules"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRuleStorage is a helper that creates a rule storage with a single
// list of the given rules.
func newTestRuleStorage(tb testing.TB, listID int, ruleLines ...string) (s *filterlist.RuleStorage) {
	tb.Helper()

	s, err := filterlist.NewRuleStorage(nil, []filterlist.RuleList{&filterlist.StringRuleList{
		ID:        listID,
		RulesText: strings.Join(ruleLines, "\n"),
	}})
	require.NoError(tb, err)

	return s
}

func TestNetworkEngine_empty(t *testing.T) {
	engine := NewNetworkEngine(newTestRuleStorage(t, 1))
	r := rules.NewRequest("http://example.org/", "", rules.TypeOther)

	assert.Empty(t, engine.MatchAll(r, nil))
	assert.Zero(t, engine.RulesCount)
}

func TestNetworkEngine_MatchAll(t *testing.T) {
	engine := NewNetworkEngine(newTestRuleStorage(t, 1,
		"||example.org^",
		"@@||example.org/allowed^",
		"_prebid_",
		"/ads[0-9]+\\.js/",
		"||example.org^$domain=site.example",
		"example.org##.banner",
	))

	assert.Equal(t, 5, engine.RulesCount)

	testCases := []struct {
		name   string
		url    string
		source string
		want   []string
	}{{
		name: "hostname",
		url:  "http://sub.example.org/",
		want: []string{"||example.org^"},
	}, {
		name: "whitelist",
		url:  "http://example.org/allowed/",
		want: []string{"||example.org^", "@@||example.org/allowed^"},
	}, {
		name: "shortcut",
		url:  "https://ap.lijit.com/rtb/bid?src=prebid_prebid_1.35.0",
		want: []string{"_prebid_"},
	}, {
		name: "regex",
		url:  "https://cdn.example/ads12.js",
		want: []string{"/ads[0-9]+\\.js/"},
	}, {
		name:   "domain",
		url:    "http://example.org/",
		source: "site.example",
		want:   []string{"||example.org^", "||example.org^$domain=site.example"},
	}, {
		name: "not_a_subdomain",
		url:  "http://notexample.org/",
		want: nil,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := rules.NewRequest(tc.url, tc.source, rules.TypeOther)

			var got []string
			for _, rule := range engine.MatchAll(r, nil) {
				got = append(got, rule.RuleText)
			}

			assert.ElementsMatch(t, tc.want, got)
		})
	}
}

func TestNetworkEngine_memory(t *testing.T) {
	const rulesNum = 20_000

	lines := make([]string, 0, rulesNum)
	for i := range rulesNum {
		switch i % 4 {
		case 0:
			lines = append(lines, fmt.Sprintf("||host%d.example^", i))
		case 1:
			lines = append(lines, fmt.Sprintf("/banner%d/*$image", i))
		case 2:
			lines = append(lines, fmt.Sprintf("||cdn.example/track%d.js$domain=site%d.example", i, i))
		default:
			lines = append(lines, fmt.Sprintf("@@||host%d.example/ok^", i-3))
		}
	}

	startHeap, startRSS := alloc(t)
	t.Logf("Allocated before loading rules (heap/RSS, kiB): %d/%d", startHeap, startRSS)

	startParse := time.Now()
	e := newTestEngine(t, lines...)
	t.Cleanup(func() { require.NoError(t, e.Close()) })
	t.Logf("Elapsed on parsing rules: %v", time.Since(startParse))

	require.Equal(t, rulesNum, e.NetworkRulesCount())

	loadHeap, loadRSS := alloc(t)
	t.Logf(
		"Allocated after loading rules (heap/RSS, kiB): %d/%d",
		loadHeap,
		loadRSS,
	)

	res := e.Matches("https://host400.example/x", "", "", false, "")
	assert.True(t, res.Matched)

	res = e.Matches("https://host400.example/ok/x", "", "", false, "")
	assert.True(t, res.Exception)

	res = e.Matches("https://img.example/banner401/a.png", "", "", false, "image")
	assert.True(t, res.Matched)

	res = e.Matches("https://cdn.example/track402.js", "", "site402.example", true, "script")
	assert.True(t, res.Matched)

	res = e.Matches("https://cdn.example/track402.js", "", "site403.example", true, "script")
	assert.False(t, res.Matched)

	t.Logf("Storage cache length: %d", e.storage.GetCacheSize())
}

// alloc returns the heap and RSS memory sizes, in kibibytes.
func alloc(t *testing.T) (heap, rss uint64) {
	p, err := process.NewProcess(int32(os.Getpid()))
	require.NoError(t, err)

	mi, err := p.MemoryInfo()
	require.NoError(t, err)

	ms := &runtime.MemStats{}
	runtime.ReadMemStats(ms)

	return ms.Alloc / 1024, mi.RSS / 1024
}

package shields_test

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/AdguardTeam/adengine"
	"github.com/AdguardTeam/adengine/regexmgr"
	"github.com/AdguardTeam/adengine/resources"
	"github.com/AdguardTeam/adengine/shields"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRules are the rules used in tests.
var testRules = strings.Join([]string{
	"||ads.example.com^$script",
	"||tracker.example^$third-party",
	"||regional.example^$tag=regional",
	"||cdn.example/ads.js$script,redirect=noop.js",
	"||site.example^$csp=script-src 'self'",
	"/banner[0-9]+\\.gif/",
	"example.com##.banner-ad",
	"##.keyed-ad",
}, "\n")

// testResources returns the resource catalog used in tests.
func testResources(tb testing.TB) (data []byte) {
	tb.Helper()

	data, err := json.Marshal([]*resources.Resource{{
		Name:    "noop.js",
		Kind:    resources.Kind{MIME: "application/javascript"},
		Content: base64.StdEncoding.EncodeToString([]byte("(function() {})()")),
	}})
	require.NoError(tb, err)

	return data
}

// newTestService is a helper that creates a service with the test rules
// loaded.
func newTestService(tb testing.TB) (s *shields.Service) {
	tb.Helper()

	s = shields.New(&shields.Config{})
	require.NoError(tb, s.Load(false, []byte(testRules), testResources(tb)))

	return s
}

func TestService_noEngine(t *testing.T) {
	s := shields.New(&shields.Config{})

	assert.Nil(t, s.Engine())
	assert.Equal(t, &adengine.BlockerResult{}, s.ShouldStartRequest("https://ads.example.com/a.js", "script", "news.example.com"))

	_, ok := s.GetCSPDirectives("https://site.example/", "main_frame", "site.example")
	assert.False(t, ok)

	assert.Equal(t, &adengine.URLSpecificResources{}, s.URLCosmeticResources("https://example.com/"))
	assert.Nil(t, s.HiddenClassIDSelectors([]string{"keyed-ad"}, nil, nil))
	assert.Equal(t, &regexmgr.DebugInfo{}, s.DebugInfo())

	// Nothing to discard.
	s.DiscardRegex(1)

	require.Error(t, s.UseResources([]byte("{")))
	require.NoError(t, s.UseResources(testResources(t)))
}

func TestService_ShouldStartRequest(t *testing.T) {
	s := newTestService(t)

	testCases := []struct {
		name         string
		url          string
		resourceType string
		tabHost      string
		wantRedirect bool
		wantMatched  bool
	}{{
		name:         "blocked",
		url:          "https://ads.example.com/a.js",
		resourceType: "script",
		tabHost:      "news.example.com",
		wantMatched:  true,
	}, {
		name:         "other_type",
		url:          "https://ads.example.com/a.css",
		resourceType: "stylesheet",
		tabHost:      "news.example.com",
		wantMatched:  false,
	}, {
		name:         "third_party",
		url:          "https://tracker.example/p.gif",
		resourceType: "image",
		tabHost:      "news.example.com",
		wantMatched:  true,
	}, {
		name:         "first_party",
		url:          "https://cdn.tracker.example/p.gif",
		resourceType: "image",
		tabHost:      "www.tracker.example",
		wantMatched:  false,
	}, {
		name:         "redirect",
		url:          "https://cdn.example/ads.js",
		resourceType: "script",
		tabHost:      "news.example.com",
		wantRedirect: true,
		wantMatched:  true,
	}, {
		name:         "tag_disabled",
		url:          "https://regional.example/",
		resourceType: "script",
		tabHost:      "news.example.com",
		wantMatched:  false,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := s.ShouldStartRequest(tc.url, tc.resourceType, tc.tabHost)
			assert.Equal(t, tc.wantMatched, res.Matched)
			assert.Equal(t, tc.wantRedirect, res.Redirect != "")
		})
	}

	directives, ok := s.GetCSPDirectives("https://site.example/", "main_frame", "site.example")
	require.True(t, ok)
	assert.Equal(t, "script-src 'self'", directives)

	res := s.URLCosmeticResources("https://example.com/")
	assert.Equal(t, []string{".banner-ad"}, res.HideSelectors)

	assert.Equal(t, []string{".keyed-ad"}, s.HiddenClassIDSelectors([]string{"keyed-ad"}, nil, nil))
}

func TestService_Load_replay(t *testing.T) {
	s := newTestService(t)

	const u = "https://regional.example/"

	s.EnableTag("regional", true)
	assert.True(t, s.TagExists("regional"))
	assert.Equal(t, []string{"regional"}, s.Tags())
	assert.True(t, s.ShouldStartRequest(u, "script", "news.example.com").Matched)

	s.SetupDiscardPolicy(regexmgr.DiscardPolicy{MaxCompiled: 1})

	snapshot, err := s.Engine().Serialize()
	require.NoError(t, err)

	prev := s.Engine()
	require.NoError(t, s.Load(true, snapshot, nil))
	require.NotSame(t, prev, s.Engine())

	// The tags, the resources and the policy survive the reload.
	assert.True(t, s.Engine().TagExists("regional"))
	assert.True(t, s.ShouldStartRequest(u, "script", "news.example.com").Matched)

	res := s.ShouldStartRequest("https://cdn.example/ads.js", "script", "news.example.com")
	assert.NotEmpty(t, res.Redirect)

	assert.True(t, s.ShouldStartRequest("https://img.example/banner1.gif", "image", "").Matched)
	assert.True(t, s.ShouldStartRequest("https://img.example/banner2.gif", "image", "").Matched)
	assert.Equal(t, 1, s.DebugInfo().CompiledRegexCount)

	s.DiscardRegex(s.DebugInfo().Entries[0].ID)
	assert.Zero(t, s.DebugInfo().CompiledRegexCount)

	s.EnableTag("regional", false)
	assert.False(t, s.TagExists("regional"))
	assert.False(t, s.ShouldStartRequest(u, "script", "news.example.com").Matched)
}

func TestService_Load_keepsEngine(t *testing.T) {
	s := newTestService(t)
	prev := s.Engine()

	err := s.Load(true, nil, nil)
	require.ErrorIs(t, err, shields.ErrEmptySnapshot)
	assert.Same(t, prev, s.Engine())

	err = s.Load(true, []byte("not a snapshot"), nil)
	require.ErrorIs(t, err, adengine.ErrBadMagic)
	assert.Same(t, prev, s.Engine())

	err = s.Load(false, []byte(testRules), []byte("{"))
	require.Error(t, err)
	assert.Same(t, prev, s.Engine())

	assert.True(t, s.ShouldStartRequest("https://ads.example.com/a.js", "script", "news.example.com").Matched)
}

func TestService_UseResources(t *testing.T) {
	s := shields.New(&shields.Config{})

	// Resources set before the first load are used by it.
	require.NoError(t, s.UseResources(testResources(t)))
	require.NoError(t, s.Load(false, []byte(testRules), nil))

	res := s.ShouldStartRequest("https://cdn.example/ads.js", "script", "news.example.com")
	assert.NotEmpty(t, res.Redirect)

	require.Error(t, s.UseResources([]byte("{")))

	res = s.ShouldStartRequest("https://cdn.example/ads.js", "script", "news.example.com")
	assert.NotEmpty(t, res.Redirect)

	require.NoError(t, s.UseResources([]byte("[]")))

	res = s.ShouldStartRequest("https://cdn.example/ads.js", "script", "news.example.com")
	assert.Empty(t, res.Redirect)
}

func TestService_concurrent(t *testing.T) {
	s := newTestService(t)

	snapshot, err := s.Engine().Serialize()
	require.NoError(t, err)

	const workers = 8

	wg := &sync.WaitGroup{}
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for range 100 {
				res := s.ShouldStartRequest("https://ads.example.com/a.js", "script", "news.example.com")
				assert.True(t, res.Matched)
			}
		}()
	}

	for i := range 10 {
		s.EnableTag("regional", i%2 == 0)
		assert.NoError(t, s.Load(true, snapshot, nil))
	}

	wg.Wait()
}

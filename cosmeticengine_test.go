package adengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_URLCosmeticResources_example(t *testing.T) {
	e := newTestEngine(t, "example.com##.banner-ad")

	res := e.URLCosmeticResources("https://example.com/page")
	assert.Equal(t, []string{".banner-ad"}, res.HideSelectors)

	res = e.URLCosmeticResources("https://other.com/page")
	assert.Empty(t, res.HideSelectors)
}

func TestEngine_URLCosmeticResources(t *testing.T) {
	e := newTestEngine(t,
		"example.com##.banner-ad",
		"##div.generic-ad",
		"##.keyed-ad",
		"###keyed-id",
		"sub.example.com,~deep.sub.example.com##.sub-ad",
		"example.com#@#div.generic-ad",
		"shop.*##.wild-ad",
		"example.com##+js(set-constant, ads, false)",
		"##+js(set-constant, generic, 1)",
		"other.com##+js(missing-scriptlet)",
		"nohide.example,noelem.example,nodoc.example##.local-ad",
		"@@||nohide.example^$generichide",
		"@@||noelem.example^$elemhide",
		"@@||nodoc.example^$document",
		"example.com#?#.extended:has(> a)",
	)
	require.NoError(t, e.UseResources(testResourcesJSON(t)))

	assert.Equal(t, 11, e.CosmeticRulesCount())
	assert.Equal(t, 3, e.NetworkRulesCount())

	const genericScript = "setConstant('generic', '1');\n"

	testCases := []struct {
		name           string
		url            string
		wantScript     string
		wantSelectors  []string
		wantExceptions []string
		wantGeneric    bool
	}{{
		name:           "specific",
		url:            "https://example.com/",
		wantScript:     "setConstant('ads', 'false');\n" + genericScript,
		wantSelectors:  []string{".banner-ad"},
		wantExceptions: []string{"div.generic-ad"},
	}, {
		name:           "generic",
		url:            "https://other.com/",
		wantScript:     genericScript,
		wantSelectors:  []string{"div.generic-ad"},
		wantExceptions: nil,
	}, {
		name:           "subdomain",
		url:            "https://sub.example.com/",
		wantScript:     "setConstant('ads', 'false');\n" + genericScript,
		wantSelectors:  []string{".banner-ad", ".sub-ad"},
		wantExceptions: []string{"div.generic-ad"},
	}, {
		name:           "restricted",
		url:            "https://deep.sub.example.com/",
		wantScript:     "setConstant('ads', 'false');\n" + genericScript,
		wantSelectors:  []string{".banner-ad"},
		wantExceptions: []string{"div.generic-ad"},
	}, {
		name:           "wildcard",
		url:            "https://shop.de/",
		wantScript:     genericScript,
		wantSelectors:  []string{".wild-ad", "div.generic-ad"},
		wantExceptions: nil,
	}, {
		name:           "generichide",
		url:            "https://nohide.example/",
		wantScript:     genericScript,
		wantSelectors:  []string{".local-ad"},
		wantExceptions: nil,
		wantGeneric:    true,
	}, {
		name:           "elemhide",
		url:            "https://noelem.example/",
		wantScript:     genericScript,
		wantSelectors:  nil,
		wantExceptions: nil,
	}, {
		name:           "document",
		url:            "https://nodoc.example/",
		wantScript:     "",
		wantSelectors:  nil,
		wantExceptions: nil,
		wantGeneric:    true,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := e.URLCosmeticResources(tc.url)
			require.NotNil(t, res)

			assert.Equal(t, tc.wantSelectors, res.HideSelectors)
			assert.Equal(t, tc.wantExceptions, res.Exceptions)
			assert.Equal(t, tc.wantScript, res.InjectedScript)
			assert.Equal(t, tc.wantGeneric, res.Generichide)
		})
	}
}

func TestEngine_URLCosmeticResources_noResources(t *testing.T) {
	e := newTestEngine(t, "example.com##+js(set-constant, ads, false)")

	res := e.URLCosmeticResources("https://example.com/")
	assert.Empty(t, res.InjectedScript)
}

func TestEngine_HiddenClassIDSelectors(t *testing.T) {
	e := newTestEngine(t,
		"##.keyed-ad",
		"##.keyed-ad > div",
		"###keyed-id",
		"##div.not-keyed",
		"example.com##.specific-ad",
	)

	testCases := []struct {
		name       string
		classes    []string
		ids        []string
		exceptions []string
		want       []string
	}{{
		name:       "all",
		classes:    []string{"keyed-ad", "other"},
		ids:        []string{"keyed-id"},
		exceptions: nil,
		want:       []string{"#keyed-id", ".keyed-ad", ".keyed-ad > div"},
	}, {
		name:       "excepted",
		classes:    []string{"keyed-ad"},
		ids:        []string{"keyed-id"},
		exceptions: []string{".keyed-ad"},
		want:       []string{"#keyed-id", ".keyed-ad > div"},
	}, {
		name:       "not_keyed",
		classes:    []string{"not-keyed", "specific-ad"},
		ids:        nil,
		exceptions: nil,
		want:       nil,
	}, {
		name:       "empty",
		classes:    nil,
		ids:        nil,
		exceptions: nil,
		want:       nil,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := e.HiddenClassIDSelectors(tc.classes, tc.ids, tc.exceptions)
			assert.Equal(t, tc.want, got)
		})
	}
}

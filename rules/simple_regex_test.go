package rules

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternToRegex(t *testing.T) {
	testCases := []struct {
		name    string
		pattern string
		want    string
	}{{
		name:    "plain_url",
		pattern: "||example.org^",
		want:    RegexStartURL + "example\\.org" + RegexSeparator,
	}, {
		name:    "url_with_path",
		pattern: "|https://example.org/[*]^",
		want: RegexStartString + "https:\\/\\/example\\.org\\/\\[" + RegexAnyCharacter + "\\]" +
			RegexSeparator,
	}, {
		name:    "url_without_path",
		pattern: "|https://example.org|",
		want:    RegexStartString + "https:\\/\\/example\\.org" + RegexEndString,
	}, {
		name:    "inner_pipe",
		pattern: "a|b",
		want:    "a\\|b",
	}, {
		name:    "any",
		pattern: "*",
		want:    RegexAnyCharacter,
	}, {
		name:    "regex",
		pattern: "/banner\\d+/",
		want:    "banner\\d+",
	}, {
		name:    "single_slash",
		pattern: "/",
		want:    "\\/",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			re := patternToRegexp(tc.pattern)
			assert.Equal(t, tc.want, re)

			_, err := regexp.Compile(re)
			require.NoError(t, err)
		})
	}
}

func TestPatternToRegex_matching(t *testing.T) {
	re := regexp.MustCompile(patternToRegexp("||example.org^"))

	assert.True(t, re.MatchString("https://example.org/"))
	assert.True(t, re.MatchString("https://sub.example.org:8080/path"))
	assert.True(t, re.MatchString("wss://example.org"))
	assert.False(t, re.MatchString("https://example.org.uk/"))
	assert.False(t, re.MatchString("https://notexample.org/"))
	assert.False(t, re.MatchString("ftp://example.org/"))
}

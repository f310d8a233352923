package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScriptlet(t *testing.T) {
	testCases := []struct {
		name     string
		call     string
		wantName string
		wantArgs []string
	}{{
		name:     "no_args",
		call:     "+js(noeval)",
		wantName: "noeval",
	}, {
		name:     "args",
		call:     "+js(set-constant.js, ads, true)",
		wantName: "set-constant.js",
		wantArgs: []string{"ads", "true"},
	}, {
		name:     "quoted",
		call:     `+js("abort-on-property-read", 'a, b')`,
		wantName: "abort-on-property-read",
		wantArgs: []string{"'a", "b'"},
	}, {
		name:     "escaped_comma",
		call:     `+js(rmnt, script, a\,b)`,
		wantName: "rmnt",
		wantArgs: []string{"script", "a,b"},
	}, {
		name:     "regex_arg",
		call:     `+js(aopr, /\d+/)`,
		wantName: "aopr",
		wantArgs: []string{`/\d+/`},
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := ParseScriptlet(tc.call)
			require.NoError(t, err)

			assert.Equal(t, tc.wantName, s.Name)
			assert.Equal(t, tc.wantArgs, s.Args)

			// The normalized form parses back to the same call.
			again, err := ParseScriptlet(scriptletPrefix + s.String() + scriptletSuffix)
			require.NoError(t, err)

			assert.Equal(t, s, again)
		})
	}

	for _, bad := range []string{"noeval", "+js(noeval", "+js()", "+js( , a)"} {
		_, err := ParseScriptlet(bad)
		assert.Error(t, err, bad)
	}
}

func TestCosmeticRule_Scriptlet(t *testing.T) {
	f, err := NewCosmeticRule("example.com##+js(set-constant, ads, false)", 0)
	require.NoError(t, err)

	s, err := f.Scriptlet()
	require.NoError(t, err)

	assert.Equal(t, "set-constant", s.Name)
	assert.Equal(t, []string{"ads", "false"}, s.Args)

	f, err = NewCosmeticRule("example.com##.ad", 0)
	require.NoError(t, err)

	_, err = f.Scriptlet()
	assert.Error(t, err)
}

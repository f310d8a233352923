package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRequest(t *testing.T) {
	r := NewRequest("https://Sub.Example.org/path?A=1", "www.example.org", TypeScript)

	assert.Equal(t, "https://Sub.Example.org/path?A=1", r.URL)
	assert.Equal(t, "https://sub.example.org/path?a=1", r.URLLowerCase)
	assert.Equal(t, "sub.example.org", r.Hostname)
	assert.Equal(t, "example.org", r.Domain)
	assert.Equal(t, "www.example.org", r.SourceHostname)
	assert.Equal(t, "example.org", r.SourceDomain)
	assert.False(t, r.ThirdParty)
	assert.Equal(t, TypeScript, r.RequestType)

	long := "https://example.org/" + strings.Repeat("a", maxURLLength)
	r = NewRequest(long, "", TypeOther)
	assert.Len(t, r.URL, maxURLLength)
}

func TestNewRequestThirdParty(t *testing.T) {
	r := NewRequestThirdParty("https://ads.example.com/x.js", "", "example.com", true, TypeScript)

	assert.Equal(t, "ads.example.com", r.Hostname)
	assert.True(t, r.ThirdParty)
}

func TestIsThirdParty(t *testing.T) {
	testCases := []struct {
		name   string
		host   string
		source string
		want   bool
	}{{
		name:   "same",
		host:   "example.com",
		source: "example.com",
		want:   false,
	}, {
		name:   "subdomain",
		host:   "ads.example.com",
		source: "www.example.com",
		want:   false,
	}, {
		name:   "other",
		host:   "ads.example.net",
		source: "example.com",
		want:   true,
	}, {
		name:   "empty_source",
		host:   "ads.example.net",
		source: "",
		want:   false,
	}, {
		name:   "private_suffix",
		host:   "alice.github.io",
		source: "bob.github.io",
		want:   true,
	}, {
		name:   "icann_suffix",
		host:   "a.example.co.uk",
		source: "b.example.co.uk",
		want:   false,
	}, {
		name:   "ip",
		host:   "192.168.0.1",
		source: "192.168.0.2",
		want:   true,
	}, {
		name:   "case",
		host:   "ADS.example.com",
		source: "example.COM",
		want:   false,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsThirdParty(tc.host, tc.source))
		})
	}
}

func TestRequestTypeFromString(t *testing.T) {
	for _, name := range []string{
		"main_frame", "sub_frame", "stylesheet", "script", "image", "font",
		"other", "object", "media", "xhr", "ping",
	} {
		typ := RequestTypeFromString(name)
		assert.Equal(t, 1, typ.Count(), name)
		assert.Equal(t, name, typ.String())
	}

	assert.Zero(t, RequestTypeFromString(""))
	assert.Zero(t, RequestTypeFromString("worker"))
	assert.Empty(t, (TypeScript | TypeImage).String())
}

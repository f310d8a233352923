package adengine

import (
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/AdguardTeam/adengine/filterlist"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSnapshotRules are the rules used to build the snapshots in tests.
var testSnapshotRules = []string{
	"||ads.example.com^$script",
	"@@||ads.example.com/ok^",
	"||tracker.example^$important,third-party",
	"/banner[0-9]+\\.gif/",
	"_prebid_",
	"||cdn.example/ads.js$redirect=noop.js",
	"||site.example^$csp=script-src 'self'",
	"$removeparam=utm_source",
	"||regional.example^$tag=regional",
	"||scoped.example^$domain=news.example|~sports.news.example",
	"example.com##.banner-ad",
	"example.com#@#div.generic-ad",
	"##div.generic-ad",
	"##.keyed-ad",
	"##+js(set-constant, generic, 1)",
}

// newSnapshot is a helper that builds a snapshot from the compressed
// payload, computing the checksum.
func newSnapshot(tb testing.TB, payload []byte) (data []byte) {
	tb.Helper()

	enc, err := zstd.NewWriter(nil)
	require.NoError(tb, err)

	compressed := enc.EncodeAll(payload, nil)
	require.NoError(tb, enc.Close())

	return newSnapshotRaw(tb, compressed)
}

// assertSameDecisions checks that want and got decide the same on the test
// requests.
func assertSameDecisions(t *testing.T, want, got *Engine) {
	t.Helper()

	requests := []struct {
		url          string
		sourceHost   string
		resourceType string
		thirdParty   bool
	}{{
		url:          "https://ads.example.com/a.js",
		sourceHost:   "news.example.com",
		resourceType: "script",
	}, {
		url:          "https://ads.example.com/a.css",
		sourceHost:   "news.example.com",
		resourceType: "stylesheet",
	}, {
		url:          "https://ads.example.com/ok/a.js",
		resourceType: "script",
	}, {
		url:          "https://tracker.example/p.gif",
		sourceHost:   "site.example",
		resourceType: "image",
		thirdParty:   true,
	}, {
		url:          "https://img.example/banner12.gif",
		resourceType: "image",
	}, {
		url: "https://ap.lijit.com/rtb/bid?src=prebid_prebid_1.35.0",
	}, {
		url:          "https://cdn.example/ads.js",
		resourceType: "script",
	}, {
		url:          "https://site.example/page?utm_source=x&id=1",
		resourceType: "main_frame",
	}, {
		url: "https://regional.example/",
	}, {
		url:        "https://scoped.example/",
		sourceHost: "www.news.example",
		thirdParty: true,
	}, {
		url:        "https://scoped.example/",
		sourceHost: "sports.news.example",
		thirdParty: true,
	}}

	for _, r := range requests {
		wantRes := want.Matches(r.url, "", r.sourceHost, r.thirdParty, r.resourceType)
		gotRes := got.Matches(r.url, "", r.sourceHost, r.thirdParty, r.resourceType)
		assert.Equal(t, wantRes, gotRes, r.url)

		wantCSP, wantOK := want.CSPDirectives(r.url, "", r.sourceHost, r.thirdParty, r.resourceType)
		gotCSP, gotOK := got.CSPDirectives(r.url, "", r.sourceHost, r.thirdParty, r.resourceType)
		assert.Equal(t, wantOK, gotOK, r.url)
		assert.Equal(t, wantCSP, gotCSP, r.url)
	}

	for _, u := range []string{"https://example.com/", "https://other.com/"} {
		assert.Equal(t, want.URLCosmeticResources(u), got.URLCosmeticResources(u), u)
	}

	assert.Equal(
		t,
		want.HiddenClassIDSelectors([]string{"keyed-ad"}, nil, nil),
		got.HiddenClassIDSelectors([]string{"keyed-ad"}, nil, nil),
	)
}

func TestEngine_Serialize(t *testing.T) {
	e := newTestEngine(t, testSnapshotRules...)
	require.NoError(t, e.UseResources(testResourcesJSON(t)))

	data, err := e.Serialize()
	require.NoError(t, err)
	require.NotEmpty(t, data)

	again, err := e.Serialize()
	require.NoError(t, err)
	assert.Equal(t, data, again)

	// An engine built from the same rules gives the same snapshot.
	other := newTestEngine(t, testSnapshotRules...)
	otherData, err := other.Serialize()
	require.NoError(t, err)
	assert.Equal(t, data, otherData)

	restored, err := Deserialize(&Config{}, data)
	require.NoError(t, err)
	require.NoError(t, restored.UseResources(testResourcesJSON(t)))

	assert.Equal(t, e.NetworkRulesCount(), restored.NetworkRulesCount())
	assert.Equal(t, e.CosmeticRulesCount(), restored.CosmeticRulesCount())

	restoredData, err := restored.Serialize()
	require.NoError(t, err)
	assert.Equal(t, data, restoredData)

	assertSameDecisions(t, e, restored)

	// Tags are not a part of the snapshot.
	assert.False(t, restored.TagExists("regional"))
	e.AddTag("regional")
	restored.AddTag("regional")
	assertSameDecisions(t, e, restored)
}

func TestEngine_Serialize_lists(t *testing.T) {
	e, err := NewEngineFromLists(&Config{}, []filterlist.RuleList{
		&filterlist.StringRuleList{
			ID:        2,
			RulesText: "||two.example^\nexample.com##.two",
		},
		&filterlist.StringRuleList{
			ID:             1,
			RulesText:      "||one.example^\nexample.com##.one",
			IgnoreCosmetic: true,
		},
	})
	require.NoError(t, err)

	data, err := e.Serialize()
	require.NoError(t, err)

	restored, err := Deserialize(nil, data)
	require.NoError(t, err)

	assert.Equal(t, 2, restored.NetworkRulesCount())
	assert.Equal(t, 1, restored.CosmeticRulesCount())

	assert.True(t, restored.Matches("https://one.example/", "", "", false, "").Matched)
	assert.True(t, restored.Matches("https://two.example/", "", "", false, "").Matched)

	res := restored.URLCosmeticResources("https://example.com/")
	assert.Equal(t, []string{".two"}, res.HideSelectors)
}

func TestEngine_Serialize_empty(t *testing.T) {
	e := newTestEngine(t)

	data, err := e.Serialize()
	require.NoError(t, err)

	restored, err := Deserialize(nil, data)
	require.NoError(t, err)

	assert.Zero(t, restored.NetworkRulesCount())
	assert.Zero(t, restored.CosmeticRulesCount())
	assert.False(t, restored.Matches("https://example.org/", "", "", false, "").Matched)
}

func TestDeserialize_errors(t *testing.T) {
	e := newTestEngine(t, testSnapshotRules...)

	data, err := e.Serialize()
	require.NoError(t, err)

	payload, err := e.encodePayload()
	require.NoError(t, err)

	badVersion := append([]byte(nil), data...)
	badVersion[len(snapshotMagic)] = snapshotVersion + 1

	badChecksum := append([]byte(nil), data...)
	badChecksum[len(badChecksum)-1] ^= 0xFF

	badMagic := append([]byte(nil), data...)
	badMagic[0] = 'X'

	testCases := []struct {
		wantErr error
		name    string
		data    []byte
	}{{
		wantErr: ErrBadMagic,
		name:    "empty",
		data:    nil,
	}, {
		wantErr: ErrBadMagic,
		name:    "short",
		data:    data[:snapshotHeaderLen-1],
	}, {
		wantErr: ErrBadMagic,
		name:    "bad_magic",
		data:    badMagic,
	}, {
		wantErr: ErrBadVersion,
		name:    "bad_version",
		data:    badVersion,
	}, {
		wantErr: ErrChecksum,
		name:    "bad_checksum",
		data:    badChecksum,
	}, {
		wantErr: ErrChecksum,
		name:    "truncated",
		data:    data[:len(data)-4],
	}, {
		wantErr: nil,
		name:    "truncated_payload",
		data:    newSnapshot(t, payload[:len(payload)/2]),
	}, {
		wantErr: nil,
		name:    "trailing_data",
		data:    newSnapshot(t, append(append([]byte(nil), payload...), 0x00)),
	}, {
		wantErr: nil,
		name:    "not_zstd",
		data:    newSnapshotRaw(t, []byte("definitely not zstd")),
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			restored, dErr := Deserialize(nil, tc.data)
			require.Error(t, dErr)

			assert.Nil(t, restored)
			if tc.wantErr != nil {
				assert.ErrorIs(t, dErr, tc.wantErr)
			}
		})
	}

	// The original payload is still accepted.
	restored, err := Deserialize(nil, newSnapshot(t, payload))
	require.NoError(t, err)
	assertSameDecisions(t, e, restored)
}

// newSnapshotRaw is a helper that builds a snapshot with the given data in
// place of the compressed payload.
func newSnapshotRaw(tb testing.TB, compressed []byte) (data []byte) {
	tb.Helper()

	data = make([]byte, snapshotHeaderLen, snapshotHeaderLen+len(compressed))
	copy(data, snapshotMagic)
	data[len(snapshotMagic)] = snapshotVersion
	binary.BigEndian.PutUint32(data[len(snapshotMagic)+1:], crc32.ChecksumIEEE(compressed))

	return append(data, compressed...)
}

package proxy

import (
	"html/template"
	"net/http"
	"testing"

	"github.com/AdguardTeam/golibs/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDataURL(t *testing.T) {
	testCases := []struct {
		name        string
		url         string
		wantMIME    string
		wantPayload string
		wantErrMsg  string
	}{{
		name:        "valid",
		url:         "data:text/plain;base64,aGk=",
		wantMIME:    "text/plain",
		wantPayload: "hi",
		wantErrMsg:  "",
	}, {
		name:        "not_data",
		url:         "https://example.org/",
		wantMIME:    "",
		wantPayload: "",
		wantErrMsg:  "not a data url",
	}, {
		name:        "no_data",
		url:         "data:text/plain;base64",
		wantMIME:    "",
		wantPayload: "",
		wantErrMsg:  "no data in data url",
	}, {
		name:        "not_base64",
		url:         "data:text/plain,hi",
		wantMIME:    "",
		wantPayload: "",
		wantErrMsg:  "data url is not base64",
	}, {
		name:        "bad_base64",
		url:         "data:text/plain;base64,!!",
		wantMIME:    "",
		wantPayload: "",
		wantErrMsg:  "decoding data url: illegal base64 data at input byte 0",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mimeType, payload, err := decodeDataURL(tc.url)
			testutil.AssertErrorMsg(t, tc.wantErrMsg, err)

			assert.Equal(t, tc.wantMIME, mimeType)
			assert.Equal(t, tc.wantPayload, string(payload))
		})
	}
}

func TestNewBlockedPageResponse(t *testing.T) {
	req := newTestRequest(t, "https://example.org/")
	res, err := newBlockedPageResponse(req, "example.org", "||example.org^$document<script>")
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	body := readAll(t, res)
	assert.Contains(t, body, "example.org")
	assert.Contains(t, body, "&lt;script&gt;")
	assert.NotContains(t, body, "$document<script>")
}

func TestNewPageResponse_error(t *testing.T) {
	req := newTestRequest(t, "https://example.org/")
	tmpl := template.Must(template.New("broken").Parse("{{.Missing}}"))

	res, err := newPageResponse(req, http.StatusForbidden, tmpl, blockedPageParameters{})
	require.Error(t, err)

	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "rendering broken page")
}

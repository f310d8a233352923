package proxy

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/gomitmproxy/proxyutil"
)

// blockedPageTmpl is the template of the page shown instead of a blocked
// document.
var blockedPageTmpl = template.Must(template.New("blocked").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Blocked</title></head>
<body>
<h1>Request to {{.Hostname}} was blocked</h1>
<p>Rule: <code>{{.RuleText}}</code></p>
</body>
</html>
`))

// blockedPageParameters are the parameters of [blockedPageTmpl].
type blockedPageParameters struct {
	Hostname string
	RuleText string
}

// newBlockedPageResponse returns the blocked page response.
func newBlockedPageResponse(
	req *http.Request,
	hostname string,
	ruleText string,
) (res *http.Response, err error) {
	return newPageResponse(req, http.StatusForbidden, blockedPageTmpl, blockedPageParameters{
		Hostname: hostname,
		RuleText: ruleText,
	})
}

// newPageResponse returns the uncacheable response with the HTML page
// rendered from tmpl and data.
func newPageResponse(
	req *http.Request,
	code int,
	tmpl *template.Template,
	data any,
) (res *http.Response, err error) {
	buf := &bytes.Buffer{}
	err = tmpl.Execute(buf, data)
	if err != nil {
		return nil, fmt.Errorf("rendering %s page: %w", tmpl.Name(), err)
	}

	res = proxyutil.NewResponse(code, buf, req)
	res.Close = true
	res.ContentLength = int64(buf.Len())
	res.Header.Set("Content-Type", "text/html; charset=utf-8")
	res.Header.Set("Cache-Control", "no-store")

	return res, nil
}

// newRedirectResponse returns the response redirecting the request to u.
func newRedirectResponse(req *http.Request, u string) (res *http.Response) {
	res = proxyutil.NewResponse(http.StatusTemporaryRedirect, nil, req)
	res.Header.Set("Location", u)
	res.Header.Set("Cache-Control", "no-store")

	return res
}

// newDataURLResponse returns the response with the payload of the base64
// data: URL u.
func newDataURLResponse(req *http.Request, u string) (res *http.Response, err error) {
	mimeType, payload, err := decodeDataURL(u)
	if err != nil {
		return nil, err
	}

	res = proxyutil.NewResponse(http.StatusOK, bytes.NewReader(payload), req)
	res.ContentLength = int64(len(payload))
	res.Header.Set("Content-Type", mimeType)
	res.Header.Set("Cache-Control", "no-store")

	return res, nil
}

// decodeDataURL decodes a "data:mime;base64,payload" URL.
func decodeDataURL(u string) (mimeType string, payload []byte, err error) {
	rest, ok := strings.CutPrefix(u, "data:")
	if !ok {
		return "", nil, errors.Error("not a data url")
	}

	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.Error("no data in data url")
	}

	mimeType, ok = strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, errors.Error("data url is not base64")
	}

	payload, err = base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", nil, fmt.Errorf("decoding data url: %w", err)
	}

	return mimeType, payload, nil
}

// suppressCache removes the cache validation headers from req.
func suppressCache(req *http.Request) {
	// Last modified time based caching.
	req.Header.Del("If-Modified-Since")
	req.Header.Del("If-Unmodified-Since")

	// ETag based caching.
	req.Header.Del("If-None-Match")
	req.Header.Del("If-Match")
	req.Header.Del("If-Range")
}

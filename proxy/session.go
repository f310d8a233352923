package proxy

import (
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/AdguardTeam/adengine"
	"github.com/AdguardTeam/adengine/rules"
)

// session contains the data needed to filter a request and its response.
//
// A request is filtered twice.  When the request headers are received, the
// request type is guessed from the "Accept" header and the URL, and the
// request is blocked, redirected or rewritten if a rule says so.  When the
// response headers are received, the request type is known from the
// "Content-Type" header, so the request is matched again and HTML pages get
// the cosmetic filters.
type session struct {
	// req is the HTTP request.
	req *http.Request

	// result is the last matching result.
	result *adengine.BlockerResult

	// id is the proxy session identifier.
	id string

	// url is the full URL of the request.
	url string

	// hostname is the hostname of the request URL.
	hostname string

	// tabHost is the hostname of the page that made the request.  For
	// documents it is the hostname of the document itself.
	tabHost string

	// requestType is the assumed type of the request.
	requestType rules.RequestType
}

// newSession creates a session for req.
func newSession(id string, req *http.Request) (s *session) {
	s = &session{
		req:         req,
		id:          id,
		url:         req.URL.String(),
		hostname:    strings.ToLower(req.URL.Hostname()),
		requestType: assumeRequestType(req, nil),
	}

	s.tabHost = s.sourceHost()

	return s
}

// sourceHost returns the hostname of the page that made the request.
func (s *session) sourceHost() (host string) {
	if s.requestType == rules.TypeDocument {
		return s.hostname
	}

	for _, v := range []string{s.req.Referer(), s.req.Header.Get("Origin")} {
		if v == "" {
			continue
		}

		u, err := url.Parse(v)
		if err == nil && u.Hostname() != "" {
			return strings.ToLower(u.Hostname())
		}
	}

	return ""
}

// setResponse updates the request type using the response headers.  changed
// is true if the type is different from the assumed one.
func (s *session) setResponse(res *http.Response) (changed bool) {
	t := assumeRequestType(s.req, res)
	if t == s.requestType {
		return false
	}

	s.requestType = t
	s.tabHost = s.sourceHost()

	return true
}

// assumeRequestType assumes the request type from what is known at this
// point.  res is nil if the response has not been received yet.
func assumeRequestType(req *http.Request, res *http.Response) (t rules.RequestType) {
	if res != nil {
		mediaType, _, _ := mime.ParseMediaType(res.Header.Get("Content-Type"))
		if t = requestTypeFromMediaType(mediaType); t != rules.TypeOther {
			return t
		}
	}

	if isWebSocket(req) {
		return rules.TypeWebsocket
	}

	t = requestTypeFromMediaType(req.Header.Get("Accept"))
	if t == rules.TypeOther {
		t = requestTypeFromURL(req.URL)
	}

	return t
}

// isWebSocket returns true if req is a WebSocket handshake.
func isWebSocket(req *http.Request) (ok bool) {
	return strings.EqualFold(req.Header.Get("Upgrade"), "websocket")
}

// mediaTypePrefixes maps the prefixes of media types to the request types.
// The order matters, since the first matching prefix wins.
var mediaTypePrefixes = []struct {
	prefix string
	t      rules.RequestType
}{
	{"application/xhtml", rules.TypeDocument},
	{"text/html", rules.TypeDocument},
	{"text/css", rules.TypeStylesheet},
	{"application/javascript", rules.TypeScript},
	{"application/x-javascript", rules.TypeScript},
	{"text/javascript", rules.TypeScript},
	{"image/", rules.TypeImage},
	{"application/x-shockwave-flash", rules.TypeObject},
	{"application/font", rules.TypeFont},
	{"application/vnd.ms-fontobject", rules.TypeFont},
	{"application/x-font-", rules.TypeFont},
	{"font/", rules.TypeFont},
	{"audio/", rules.TypeMedia},
	{"video/", rules.TypeMedia},
	{"application/json", rules.TypeXmlhttprequest},
}

// requestTypeFromMediaType detects the request type from the media type.
func requestTypeFromMediaType(mediaType string) (t rules.RequestType) {
	for _, p := range mediaTypePrefixes {
		if strings.HasPrefix(mediaType, p.prefix) {
			return p.t
		}
	}

	return rules.TypeOther
}

// fileExtensions maps file extensions to the request types.
var fileExtensions = map[string]rules.RequestType{
	// $script
	".js":     rules.TypeScript,
	".mjs":    rules.TypeScript,
	".vbs":    rules.TypeScript,
	".coffee": rules.TypeScript,
	// $image
	".jpg":  rules.TypeImage,
	".jpeg": rules.TypeImage,
	".gif":  rules.TypeImage,
	".png":  rules.TypeImage,
	".webp": rules.TypeImage,
	".avif": rules.TypeImage,
	".svg":  rules.TypeImage,
	".tiff": rules.TypeImage,
	".ico":  rules.TypeImage,
	// $stylesheet
	".css":  rules.TypeStylesheet,
	".less": rules.TypeStylesheet,
	// $object
	".jar": rules.TypeObject,
	".swf": rules.TypeObject,
	// $media
	".wav":  rules.TypeMedia,
	".mp3":  rules.TypeMedia,
	".mp4":  rules.TypeMedia,
	".avi":  rules.TypeMedia,
	".flv":  rules.TypeMedia,
	".m3u":  rules.TypeMedia,
	".m3u8": rules.TypeMedia,
	".webm": rules.TypeMedia,
	".mpeg": rules.TypeMedia,
	".ogg":  rules.TypeMedia,
	".mov":  rules.TypeMedia,
	".mkv":  rules.TypeMedia,
	// $font
	".ttf":   rules.TypeFont,
	".otf":   rules.TypeFont,
	".woff":  rules.TypeFont,
	".woff2": rules.TypeFont,
	".eot":   rules.TypeFont,
	// $xmlhttprequest
	".json": rules.TypeXmlhttprequest,
}

// requestTypeFromURL assumes the request type from the file extension.
func requestTypeFromURL(u *url.URL) (t rules.RequestType) {
	t, ok := fileExtensions[strings.ToLower(path.Ext(u.Path))]
	if !ok {
		return rules.TypeOther
	}

	return t
}

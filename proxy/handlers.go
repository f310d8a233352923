package proxy

import (
	"mime"
	"net/http"

	"github.com/AdguardTeam/adengine/rules"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/gomitmproxy/proxyutil"
)

// filterRequest matches the request of s.  res is not nil if the request
// must not be sent.
func (s *Server) filterRequest(fs *session) (res *http.Response) {
	fs.result = s.shields.ShouldStartRequest(fs.url, fs.requestType.String(), fs.tabHost)

	switch {
	case fs.result.Matched:
		s.logger.Debug("request blocked", "id", fs.id, "url", fs.url, "rule", fs.result.Filter)

		return s.blockedResponse(fs)
	case fs.result.RewrittenURL != "":
		s.logger.Debug("request rewritten", "id", fs.id, "url", fs.url, "to", fs.result.RewrittenURL)

		return newRedirectResponse(fs.req, fs.result.RewrittenURL)
	}

	if fs.requestType == rules.TypeDocument {
		// Conditional requests for pages lead to 304 responses, which
		// cannot be filtered.
		suppressCache(fs.req)
	}

	return nil
}

// filterResponse filters the response to the request of fs.  It returns nil
// if res should be passed as is.
func (s *Server) filterResponse(fs *session, res *http.Response) (filtered *http.Response) {
	if res == nil {
		return nil
	}

	if fs.setResponse(res) {
		fs.result = s.shields.ShouldStartRequest(fs.url, fs.requestType.String(), fs.tabHost)
		if fs.result.Matched {
			s.logger.Debug("response blocked", "id", fs.id, "url", fs.url, "rule", fs.result.Filter)

			return s.blockedResponse(fs)
		}
	}

	if fs.requestType != rules.TypeDocument {
		return nil
	}

	if directives, ok := s.shields.GetCSPDirectives(fs.url, fs.requestType.String(), fs.tabHost); ok {
		res.Header.Add("Content-Security-Policy", directives)
	}

	mediaType, _, _ := mime.ParseMediaType(res.Header.Get("Content-Type"))
	if res.StatusCode != http.StatusOK || mediaType != "text/html" {
		return res
	}

	err := s.injectCosmetics(fs, res)
	if err != nil {
		s.logger.Debug("cosmetic filters not injected", "id", fs.id, slogutil.KeyError, err)
	}

	return res
}

// blockedResponse returns the response to the blocked request of fs: the
// redirect resource if there is one, the blocked page for documents and an
// empty response otherwise.
func (s *Server) blockedResponse(fs *session) (res *http.Response) {
	if fs.result.Redirect != "" {
		redirect, err := newDataURLResponse(fs.req, fs.result.Redirect)
		if err == nil {
			return redirect
		}

		s.logger.Debug("bad redirect", "id", fs.id, slogutil.KeyError, err)
	}

	if fs.requestType == rules.TypeDocument {
		page, err := newBlockedPageResponse(fs.req, fs.hostname, fs.result.Filter)
		if err == nil {
			return page
		}

		s.logger.Error("blocked page", "id", fs.id, slogutil.KeyError, err)
	}

	res = proxyutil.NewResponse(http.StatusForbidden, nil, fs.req)
	res.Close = true

	return res
}

// Package proxy implements a MITM proxy that filters the traffic with the
// ad-blocking engine: it blocks and redirects requests, strips tracking
// parameters, adds Content-Security-Policy directives and injects the
// cosmetic filters into HTML pages.
package proxy

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/AdguardTeam/adengine/shields"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/gomitmproxy"
	"github.com/c2h5oh/datasize"
)

// Session property keys.
const (
	sessionPropKey    = "session"
	requestBlockedKey = "blocked"
)

// DefaultMaxBodySize is the default maximum size of an HTML page the
// cosmetic filters are injected into.
const DefaultMaxBodySize = 8 * datasize.MB

// Config is the configuration structure for a *Server.
type Config struct {
	// Logger is used to log the server's activity.  If nil,
	// [slogutil.NewDiscardLogger] is used.
	Logger *slog.Logger

	// Shields is the service that decides how requests are filtered.  It
	// must not be nil.
	Shields *shields.Service

	// ProxyConfig is the configuration of the MITM proxy.  Its handlers are
	// replaced by the server's ones.
	ProxyConfig gomitmproxy.Config

	// MaxBodySize is the maximum size of an HTML page the cosmetic filters
	// are injected into.  Larger pages are passed as is.  If zero,
	// [DefaultMaxBodySize] is used.
	MaxBodySize datasize.ByteSize
}

// Server is a filtering MITM proxy server.
type Server struct {
	logger      *slog.Logger
	shields     *shields.Service
	proxy       *gomitmproxy.Proxy
	maxBodySize datasize.ByteSize
}

// NewServer creates a new *Server.  c must not be nil.
func NewServer(c *Config) (s *Server, err error) {
	if c.Shields == nil {
		return nil, errors.Error("no shields service")
	}

	s = &Server{
		logger:      c.Logger,
		shields:     c.Shields,
		maxBodySize: c.MaxBodySize,
	}

	if s.logger == nil {
		s.logger = slogutil.NewDiscardLogger()
	}

	if s.maxBodySize == 0 {
		s.maxBodySize = DefaultMaxBodySize
	}

	pc := c.ProxyConfig
	pc.OnRequest = s.onRequest
	pc.OnResponse = s.onResponse
	s.proxy = gomitmproxy.NewProxy(pc)

	return s, nil
}

// Start starts the proxy server.
func (s *Server) Start() (err error) {
	s.logger.Info("starting proxy")

	return s.proxy.Start()
}

// Close stops the proxy server.
func (s *Server) Close() {
	s.proxy.Close()
}

// onRequest handles the outgoing HTTP requests.
func (s *Server) onRequest(sess *gomitmproxy.Session) (req *http.Request, res *http.Response) {
	req = sess.Request()
	if req.Method == http.MethodConnect {
		return nil, nil
	}

	fs := newSession(sess.ID(), req)
	sess.SetProp(sessionPropKey, fs)

	res = s.filterRequest(fs)
	if res != nil {
		// Don't modify the response in onResponse.
		sess.SetProp(requestBlockedKey, true)

		return nil, res
	}

	return req, nil
}

// onResponse handles the responses.
func (s *Server) onResponse(sess *gomitmproxy.Session) (res *http.Response) {
	if _, ok := sess.GetProp(requestBlockedKey); ok {
		return nil
	}

	v, ok := sess.GetProp(sessionPropKey)
	if !ok {
		return nil
	}

	fs, ok := v.(*session)
	if !ok {
		s.logger.Error("bad session property", "id", sess.ID(), "type", fmt.Sprintf("%T", v))

		return nil
	}

	return s.filterResponse(fs, sess.Response())
}

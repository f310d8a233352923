// Package adengine contains the ad-blocking engine: the network engine that
// decides whether a request should be blocked, the cosmetic engine that
// selects the element hiding rules and scriptlets for a page, and the binary
// snapshot of both.
package adengine

import (
	"log/slog"

	"github.com/AdguardTeam/adengine/regexmgr"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// Config is the configuration structure for an *Engine.
type Config struct {
	// Logger is used to log the engine's activity.  If nil,
	// [slogutil.NewDiscardLogger] is used.
	Logger *slog.Logger

	// Clock is used by the regular expressions manager.  If nil,
	// [regexmgr.SystemClock] is used.
	Clock regexmgr.Clock

	// DiscardPolicy is the initial discard policy of the compiled regular
	// expressions.
	DiscardPolicy regexmgr.DiscardPolicy
}

// logger returns the configured logger or a discarding one.
func (c *Config) logger() (l *slog.Logger) {
	if c == nil || c.Logger == nil {
		return slogutil.NewDiscardLogger()
	}

	return c.Logger
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AdguardTeam/adengine"
	"github.com/AdguardTeam/adengine/proxy"
	"github.com/AdguardTeam/adengine/shields"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/gomitmproxy"
	"github.com/c2h5oh/datasize"
)

// errNoRules is returned when neither filter lists nor a snapshot are
// configured.
const errNoRules errors.Error = "no filter lists or snapshot"

// compileCommand is the "compile" command.
type compileCommand struct {
	opts *Options
}

// Execute implements the [goFlags.Commander] interface for *compileCommand.
func (c *compileCommand) Execute(_ []string) (err error) {
	conf, err := readConfiguration(c.opts)
	if err != nil {
		return err
	}

	if conf.Snapshot == "" {
		return errors.Error("no snapshot path")
	}

	logger := newLogger(c.opts.Verbose)

	data, err := compileLists(logger, conf)
	if err != nil {
		return err
	}

	// nolint: gosec
	err = os.WriteFile(conf.Snapshot, data, 0o644)
	if err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	logger.Info(
		"snapshot written",
		"path", conf.Snapshot,
		"size", datasize.ByteSize(len(data)).HumanReadable(),
	)

	return nil
}

// compileLists builds an engine of the lists of conf and returns its
// snapshot.
func compileLists(logger *slog.Logger, conf *configuration) (data []byte, err error) {
	if len(conf.Lists) == 0 {
		return nil, errNoRules
	}

	lists, err := readLists(conf)
	if err != nil {
		return nil, fmt.Errorf("reading lists: %w", err)
	}

	e, err := adengine.NewEngineFromLists(&adengine.Config{
		Logger: logger.With("prefix", "adengine"),
	}, lists)
	if err != nil {
		return nil, fmt.Errorf("building engine: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, e.Close()) }()

	logger.Info(
		"lists compiled",
		"lists", len(lists),
		"network_rules", e.NetworkRulesCount(),
		"cosmetic_rules", e.CosmeticRulesCount(),
	)

	return e.Serialize()
}

// newShields returns the shields service with the engine described by conf.
// Filter lists take precedence over the snapshot.
func newShields(logger *slog.Logger, conf *configuration) (svc *shields.Service, err error) {
	svc = shields.New(&shields.Config{
		Logger:        logger.With("prefix", "shields"),
		DiscardPolicy: conf.DiscardPolicy.toInternal(),
	})

	for _, tag := range conf.Tags {
		svc.EnableTag(tag, true)
	}

	err = loadEngine(logger, svc, conf)
	if err != nil {
		return nil, err
	}

	return svc, nil
}

// loadEngine loads the engine described by conf into svc.
func loadEngine(logger *slog.Logger, svc *shields.Service, conf *configuration) (err error) {
	var res []byte
	if conf.Resources != "" {
		res, err = readFile(conf.Resources, conf.MaxListSize)
		if err != nil {
			return fmt.Errorf("reading resources: %w", err)
		}
	}

	var snapshot []byte
	switch {
	case len(conf.Lists) > 0:
		snapshot, err = compileLists(logger, conf)
	case conf.Snapshot != "":
		snapshot, err = os.ReadFile(conf.Snapshot)
	default:
		err = errNoRules
	}
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}

	return svc.Load(true, snapshot, res)
}

// writeJSON writes v to w as indented JSON.
func writeJSON(w io.Writer, v any) (err error) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// matchCommand is the "match" command.
type matchCommand struct {
	opts *Options

	// Type is the resource type of the request.
	Type string `long:"type" description:"Resource type of the request, for example script or main_frame." default:"other"`

	// SourceHost is the hostname of the page that made the request.
	SourceHost string `long:"source-host" description:"Hostname of the page that made the request."`

	// Args are the positional arguments.
	Args struct {
		URL string `positional-arg-name:"url"`
	} `positional-args:"yes" required:"yes"`
}

// matchOutput is the output of the "match" command.
type matchOutput struct {
	*adengine.BlockerResult

	// CSP are the Content-Security-Policy directives for the request.
	CSP string `json:"csp,omitempty"`
}

// Execute implements the [goFlags.Commander] interface for *matchCommand.
func (c *matchCommand) Execute(_ []string) (err error) {
	conf, err := readConfiguration(c.opts)
	if err != nil {
		return err
	}

	svc, err := newShields(newLogger(c.opts.Verbose), conf)
	if err != nil {
		return err
	}

	out := &matchOutput{
		BlockerResult: svc.ShouldStartRequest(c.Args.URL, c.Type, c.SourceHost),
	}
	out.CSP, _ = svc.GetCSPDirectives(c.Args.URL, c.Type, c.SourceHost)

	return writeJSON(os.Stdout, out)
}

// cosmeticCommand is the "cosmetic" command.
type cosmeticCommand struct {
	opts *Options

	// Classes and IDs are the classes and ids of the page elements.
	Classes []string `long:"class" description:"Class of a page element. Can be specified multiple times."`
	IDs     []string `long:"id" description:"ID of a page element. Can be specified multiple times."`

	// Args are the positional arguments.
	Args struct {
		URL string `positional-arg-name:"url"`
	} `positional-args:"yes" required:"yes"`
}

// cosmeticOutput is the output of the "cosmetic" command.
type cosmeticOutput struct {
	*adengine.URLSpecificResources

	// ClassIDSelectors are the generic selectors for the given classes and
	// ids.
	ClassIDSelectors []string `json:"class_id_selectors,omitempty"`
}

// Execute implements the [goFlags.Commander] interface for *cosmeticCommand.
func (c *cosmeticCommand) Execute(_ []string) (err error) {
	conf, err := readConfiguration(c.opts)
	if err != nil {
		return err
	}

	svc, err := newShields(newLogger(c.opts.Verbose), conf)
	if err != nil {
		return err
	}

	res := svc.URLCosmeticResources(c.Args.URL)
	out := &cosmeticOutput{
		URLSpecificResources: res,
	}

	if !res.Generichide && (len(c.Classes) > 0 || len(c.IDs) > 0) {
		out.ClassIDSelectors = svc.HiddenClassIDSelectors(c.Classes, c.IDs, res.Exceptions)
	}

	return writeJSON(os.Stdout, out)
}

// proxyCommand is the "proxy" command.
type proxyCommand struct {
	opts *Options
}

// Execute implements the [goFlags.Commander] interface for *proxyCommand.
// SIGHUP reloads the rules, SIGINT and SIGTERM stop the proxy.
func (c *proxyCommand) Execute(_ []string) (err error) {
	conf, err := readConfiguration(c.opts)
	if err != nil {
		return err
	}

	logger := newLogger(c.opts.Verbose)

	svc, err := newShields(logger, conf)
	if err != nil {
		return err
	}

	srv, err := newProxyServer(logger, svc, conf.Proxy)
	if err != nil {
		return fmt.Errorf("creating proxy server: %w", err)
	}

	err = srv.Start()
	if err != nil {
		return fmt.Errorf("starting proxy server: %w", err)
	}
	defer srv.Close()

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range signalChannel {
		if sig != syscall.SIGHUP {
			logger.Info("stopping proxy", "signal", sig)

			return nil
		}

		// Read the configuration again so that the edited lists are used.
		reloadErr := reload(logger, svc, c.opts)
		if reloadErr != nil {
			logger.Error("reloading rules", slogutil.KeyError, reloadErr)
		}
	}

	return nil
}

// reload reads the configuration and replaces the engine of svc.  The current
// engine stays in place on error.
func reload(logger *slog.Logger, svc *shields.Service, opts *Options) (err error) {
	conf, err := readConfiguration(opts)
	if err != nil {
		return err
	}

	svc.SetupDiscardPolicy(conf.DiscardPolicy.toInternal())

	return loadEngine(logger, svc, conf)
}

// newProxyServer returns the filtering proxy server described by conf.
func newProxyServer(
	logger *slog.Logger,
	svc *shields.Service,
	conf *proxyConfig,
) (srv *proxy.Server, err error) {
	addr, err := conf.listenAddr()
	if err != nil {
		return nil, err
	}

	if conf.CACert == "" || conf.CAKey == "" {
		return nil, errors.Error("proxy: ca_cert and ca_key are required")
	}

	mitmConfig, err := newMITMConfig(conf.CACert, conf.CAKey)
	if err != nil {
		return nil, err
	}

	tlsConfig, err := newProxyTLSConfig(mitmConfig, conf.HTTPSHostname)
	if err != nil {
		return nil, err
	}

	return proxy.NewServer(&proxy.Config{
		Logger:  logger.With("prefix", "proxy"),
		Shields: svc,
		ProxyConfig: gomitmproxy.Config{
			ListenAddr: addr,
			TLSConfig:  tlsConfig,

			Username: conf.Username,
			Password: conf.Password,
			APIHost:  "adguard",

			MITMConfig:     mitmConfig,
			MITMExceptions: conf.MITMExceptions,
		},
		MaxBodySize: conf.MaxBodySize,
	})
}

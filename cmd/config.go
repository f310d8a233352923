package main

import (
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/AdguardTeam/adengine/filterlist"
	"github.com/AdguardTeam/adengine/proxy"
	"github.com/AdguardTeam/adengine/regexmgr"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/c2h5oh/datasize"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// defaultMaxListSize is the default maximum size of a filter list file.
const defaultMaxListSize = 64 * datasize.MB

// configuration is the YAML configuration file.
type configuration struct {
	// Proxy is the configuration of the proxy command.
	Proxy *proxyConfig `yaml:"proxy"`

	// DiscardPolicy is the discard policy of the compiled regular
	// expressions.
	DiscardPolicy *discardPolicyConfig `yaml:"discard_policy"`

	// Resources is the path to the JSON resource catalog.
	Resources string `yaml:"resources"`

	// Snapshot is the path to the engine snapshot.
	Snapshot string `yaml:"snapshot"`

	// Lists are the filter lists.
	Lists []*listConfig `yaml:"lists"`

	// Tags are the tags enabled at startup.
	Tags []string `yaml:"tags"`

	// MaxListSize is the maximum size of a filter list file.
	MaxListSize datasize.ByteSize `yaml:"max_list_size"`
}

// listConfig is a filter list in the configuration file.
type listConfig struct {
	// Path is the path to the list file.
	Path string `yaml:"path"`

	// ID is the identifier of the list.  If it is zero, the list gets the
	// one-based position among the lists.
	ID int `yaml:"id"`

	// IgnoreCosmetic tells whether the cosmetic rules of the list are
	// skipped.
	IgnoreCosmetic bool `yaml:"ignore_cosmetic"`
}

// discardPolicyConfig is the discard policy in the configuration file.
type discardPolicyConfig struct {
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	DiscardUnusedTime time.Duration `yaml:"discard_unused_time"`
	MaxCompiled       int           `yaml:"max_compiled"`
}

// toInternal returns the discard policy described by c.  c may be nil.
func (c *discardPolicyConfig) toInternal() (p regexmgr.DiscardPolicy) {
	if c == nil {
		return regexmgr.DiscardPolicy{}
	}

	return regexmgr.DiscardPolicy{
		CleanupInterval:   c.CleanupInterval,
		DiscardUnusedTime: c.DiscardUnusedTime,
		MaxCompiled:       c.MaxCompiled,
	}
}

// proxyConfig is the configuration of the filtering proxy.
type proxyConfig struct {
	// ListenAddr is the address the proxy listens on.
	ListenAddr string `yaml:"listen_addr"`

	// CACert is the path to the root certificate.
	CACert string `yaml:"ca_cert"`

	// CAKey is the path to the private key of the root certificate.
	CAKey string `yaml:"ca_key"`

	// Username and Password enable proxy authorization when set.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// HTTPSHostname is the server name of the proxy.  If set, the proxy
	// accepts TLS connections.
	HTTPSHostname string `yaml:"https_hostname"`

	// MITMExceptions are the hostnames that are never decrypted.
	MITMExceptions []string `yaml:"mitm_exceptions"`

	// MaxBodySize is the maximum size of a page body the proxy modifies.
	MaxBodySize datasize.ByteSize `yaml:"max_body_size"`
}

// listenAddr parses the listen address of c.
func (c *proxyConfig) listenAddr() (addr *net.TCPAddr, err error) {
	ap, err := netip.ParseAddrPort(c.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen_addr: %w", err)
	}

	return net.TCPAddrFromAddrPort(ap), nil
}

// defaultConfiguration returns the configuration used when there is no
// configuration file.
func defaultConfiguration() (conf *configuration) {
	return &configuration{
		Proxy: &proxyConfig{
			ListenAddr:  "127.0.0.1:8080",
			MaxBodySize: proxy.DefaultMaxBodySize,
		},
		MaxListSize: defaultMaxListSize,
	}
}

// readConfiguration reads the configuration from the file at path, if it's
// not empty, and applies opts over it.
func readConfiguration(opts *Options) (conf *configuration, err error) {
	conf = defaultConfiguration()

	if opts.ConfigPath != "" {
		var data []byte
		data, err = os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		err = yaml.Unmarshal(data, conf)
		if err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	conf.applyOptions(opts)

	err = conf.validate()
	if err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return conf, nil
}

// applyOptions overrides the fields of conf with the ones set in opts and
// assigns the missing list identifiers.
func (conf *configuration) applyOptions(opts *Options) {
	for _, p := range opts.FilterLists {
		conf.Lists = append(conf.Lists, &listConfig{Path: p})
	}

	if opts.ResourcesPath != "" {
		conf.Resources = opts.ResourcesPath
	}

	if opts.SnapshotPath != "" {
		conf.Snapshot = opts.SnapshotPath
	}

	conf.Tags = append(conf.Tags, opts.Tags...)

	for i, l := range conf.Lists {
		if l != nil && l.ID == 0 {
			l.ID = i + 1
		}
	}
}

// validate returns an error if conf is invalid.
func (conf *configuration) validate() (err error) {
	var errs []error

	ids := map[int]struct{}{}
	for i, l := range conf.Lists {
		switch {
		case l == nil:
			errs = append(errs, fmt.Errorf("lists: at index %d: empty list", i))
		case l.Path == "":
			errs = append(errs, fmt.Errorf("lists: at index %d: empty path", i))
		case l.ID < 0:
			errs = append(errs, fmt.Errorf("lists: at index %d: negative id %d", i, l.ID))
		default:
			if _, ok := ids[l.ID]; ok {
				errs = append(errs, fmt.Errorf("lists: at index %d: duplicate id %d", i, l.ID))
			}

			ids[l.ID] = struct{}{}
		}
	}

	if conf.MaxListSize == 0 {
		errs = append(errs, errors.Error("max_list_size: must be positive"))
	}

	if p := conf.DiscardPolicy; p != nil && (p.MaxCompiled < 0 ||
		p.CleanupInterval < 0 ||
		p.DiscardUnusedTime < 0) {
		errs = append(errs, errors.Error("discard_policy: negative value"))
	}

	if conf.Proxy == nil {
		errs = append(errs, errors.Error("proxy: no value"))
	} else if _, pErr := conf.Proxy.listenAddr(); pErr != nil {
		errs = append(errs, fmt.Errorf("proxy: %w", pErr))
	}

	return errors.Join(errs...)
}

// readLists reads the filter lists of conf concurrently.
func readLists(conf *configuration) (lists []filterlist.RuleList, err error) {
	lists = make([]filterlist.RuleList, len(conf.Lists))

	g := &errgroup.Group{}
	for i, l := range conf.Lists {
		g.Go(func() error {
			text, readErr := readFile(l.Path, conf.MaxListSize)
			if readErr != nil {
				return fmt.Errorf("list %d: %w", l.ID, readErr)
			}

			lists[i] = &filterlist.StringRuleList{
				RulesText:      string(text),
				ID:             l.ID,
				IgnoreCosmetic: l.IgnoreCosmetic,
			}

			return nil
		})
	}

	err = g.Wait()
	if err != nil {
		return nil, err
	}

	return lists, nil
}

// readFile reads the file at path that must not be larger than maxSize.
func readFile(path string, maxSize datasize.ByteSize) (data []byte, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, f.Close()) }()

	data, err = io.ReadAll(io.LimitReader(f, int64(maxSize)+1))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	if datasize.ByteSize(len(data)) > maxSize {
		return nil, fmt.Errorf("file %q is larger than %s", path, maxSize)
	}

	return data, nil
}

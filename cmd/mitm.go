package main

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/gomitmproxy/mitm"
)

// certValidity is the validity period of the generated certificates.
const certValidity = 7 * 24 * time.Hour

// newMITMConfig loads the root CA and returns the MITM configuration that
// signs the certificates of the proxied hosts with it.
func newMITMConfig(certPath, keyPath string) (c *mitm.Config, err error) {
	tlsCert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading root ca: %w", err)
	}

	privateKey, ok := tlsCert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("root ca key: want rsa, got %T", tlsCert.PrivateKey)
	}

	x509c, err := x509.ParseCertificate(tlsCert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("parsing root ca: %w", err)
	}

	c, err = mitm.NewConfig(x509c, privateKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating mitm config: %w", err)
	}

	c.SetValidity(certValidity)
	c.SetOrganization("AdGuard")

	return c, nil
}

// newProxyTLSConfig returns the TLS configuration of the proxy itself or nil
// if hostname is empty and the proxy is plain HTTP.
func newProxyTLSConfig(c *mitm.Config, hostname string) (conf *tls.Config, err error) {
	if hostname == "" {
		return nil, nil
	}

	cert, err := c.GetOrCreateCert(hostname)
	if err != nil {
		return nil, fmt.Errorf("generating proxy certificate for %q: %w", hostname, err)
	}

	if cert == nil {
		return nil, errors.Error("no proxy certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		ServerName:   hostname,
	}, nil
}

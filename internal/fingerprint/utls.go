// Package fingerprint builds HTTP transports whose TLS ClientHello mimics a
// real browser. Some sitemap hosts sit behind WAFs that reject Go's default
// handshake outright.
package fingerprint

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	utls "github.com/refraction-networking/utls"
)

// Profile represents a recognized TLS fingerprint profile.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // standard go TLS
	ProfileRandom  Profile = "random" // randomized uTLS profile
)

// ParseProfile maps a configuration string to a Profile. Empty means ProfileGo.
func ParseProfile(s string) (Profile, error) {
	switch p := Profile(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ProfileGo, nil
	case ProfileChrome, ProfileFirefox, ProfileSafari, ProfileGo, ProfileRandom:
		return p, nil
	default:
		return "", fmt.Errorf("unknown fingerprint profile %q", s)
	}
}

// Options tunes the transport returned by Transport.
type Options struct {
	// Proxy overrides the environment proxy lookup when non-nil.
	Proxy func(*http.Request) (*url.URL, error)
	// MaxConnsPerHost caps parallel connections to a single host (0 = unlimited).
	MaxConnsPerHost int
	// IdleConnTimeout defaults to 90s.
	IdleConnTimeout time.Duration
	// InsecureSkipVerify disables certificate checks. Tests only.
	InsecureSkipVerify bool
}

func (p Profile) helloID() (utls.ClientHelloID, error) {
	switch p {
	case ProfileChrome:
		return utls.HelloChrome_Auto, nil
	case ProfileFirefox:
		return utls.HelloFirefox_Auto, nil
	case ProfileSafari:
		return utls.HelloIOS_Auto, nil
	case ProfileRandom:
		return utls.HelloRandomizedALPN, nil
	default:
		return utls.ClientHelloID{}, fmt.Errorf("unknown profile %q", p)
	}
}

// Transport returns an *http.Transport for profile p. ProfileGo keeps the
// standard library handshake; every other profile dials through utls.UClient
// and only offers http/1.1, since http.Transport cannot run h2 over a
// *utls.UConn.
//
// A proxied request is tunnelled with CONNECT and then handshaken by
// crypto/tls, so browser profiles do not survive a proxy. config.Validate
// rejects that combination.
func Transport(p Profile, opts Options) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != nil {
		transport.Proxy = opts.Proxy
	}
	// Every crawl batch fans out over a handful of hosts; keep their
	// connections warm between batches.
	transport.MaxIdleConnsPerHost = 16
	if opts.MaxConnsPerHost > 0 {
		transport.MaxConnsPerHost = opts.MaxConnsPerHost
	}
	if opts.IdleConnTimeout > 0 {
		transport.IdleConnTimeout = opts.IdleConnTimeout
	}

	if p == ProfileGo {
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		return transport, nil
	}

	id, err := p.helloID()
	if err != nil {
		return nil, err
	}

	dial := transport.DialContext
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		spec, err := http1Spec(id)
		if err != nil {
			_ = tcpConn.Close()
			return nil, err
		}
		uConn := utls.UClient(tcpConn, &utls.Config{
			ServerName:         host,
			InsecureSkipVerify: opts.InsecureSkipVerify,
		}, utls.HelloCustom)
		if err := uConn.ApplyPreset(&spec); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("utls preset for %s: %w", host, err)
		}
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("utls handshake with %s: %w", host, err)
		}

		return uConn, nil
	}

	return transport, nil
}

// http1Spec builds a fresh ClientHello spec for id with ALPN limited to
// http/1.1. ALPS entries only name h2, so they are dropped.
func http1Spec(id utls.ClientHelloID) (utls.ClientHelloSpec, error) {
	spec, err := utls.UTLSIdToSpec(id)
	if err != nil {
		return utls.ClientHelloSpec{}, fmt.Errorf("client hello spec %s: %w", id.Str(), err)
	}

	exts := spec.Extensions[:0]
	for _, ext := range spec.Extensions {
		switch e := ext.(type) {
		case *utls.ALPNExtension:
			e.AlpnProtocols = []string{"http/1.1"}
		case *utls.ApplicationSettingsExtension, *utls.ApplicationSettingsExtensionNew:
			continue
		}
		exts = append(exts, ext)
	}
	spec.Extensions = exts
	return spec, nil
}

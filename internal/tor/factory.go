package tor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Mode selects how HTTP clients reach their hosts.
type Mode int

const (
	// ModeAuto connects directly to clearnet hosts and through the SOCKS
	// proxy to .onion hosts.
	ModeAuto Mode = iota

	// ModeDirect never uses a proxy. Onion hosts are unreachable.
	ModeDirect

	// ModeSOCKS routes every host through an external SOCKS5 proxy.
	ModeSOCKS

	// ModeEmbedded routes every host through a Tor daemon started by the
	// process itself.
	ModeEmbedded
)

// String returns the flag spelling of the mode.
func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeDirect:
		return "direct"
	case ModeSOCKS:
		return "socks"
	case ModeEmbedded:
		return "embedded"
	default:
		return "unknown"
	}
}

// ParseMode parses a mode name. The empty string is ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "direct":
		return ModeDirect, nil
	case "socks", "socks5", "tor":
		return ModeSOCKS, nil
	case "embedded":
		return ModeEmbedded, nil
	default:
		return ModeAuto, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// SiteOptions are the per-site settings applied to a client.
type SiteOptions struct {
	// Cookie is sent with every request.
	Cookie string

	// Headers are set on every request.
	Headers map[string]string

	// Mode overrides the factory mode for this site when non-empty.
	Mode string
}

// directDialTimeout bounds TCP connects made without the proxy.
const directDialTimeout = 30 * time.Second

// Factory hands out HTTP clients according to the proxy mode. It owns the
// SOCKS client and, in embedded mode, the Tor daemon.
type Factory struct {
	mode           Mode
	proxyAddress   string
	timeout        time.Duration
	startupTimeout time.Duration
	logger         *slog.Logger

	mu       sync.Mutex
	started  bool
	socks    *Client
	status   ProxyStatus
	embedded *EmbeddedTor
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithHTTPTimeout sets the http.Client timeout of every client handed out.
// Zero, the default, leaves deadlines to the request context.
func WithHTTPTimeout(d time.Duration) FactoryOption {
	return func(f *Factory) {
		f.timeout = d
	}
}

// WithTorStartupTimeout sets the bootstrap timeout of the embedded daemon.
func WithTorStartupTimeout(d time.Duration) FactoryOption {
	return func(f *Factory) {
		if d > 0 {
			f.startupTimeout = d
		}
	}
}

// WithLogger sets the logger for proxy diagnostics.
func WithLogger(logger *slog.Logger) FactoryOption {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFactory creates a factory for mode. proxyAddress is the external SOCKS5
// proxy used by ModeSOCKS and ModeAuto; it is validated but not contacted.
func NewFactory(mode Mode, proxyAddress string, opts ...FactoryOption) (*Factory, error) {
	if (mode == ModeSOCKS || mode == ModeAuto) && !isValidProxyAddress(proxyAddress) {
		return nil, ErrInvalidProxyAddress
	}
	f := &Factory{
		mode:           mode,
		proxyAddress:   proxyAddress,
		startupTimeout: DefaultStartupTimeout,
		logger:         slog.Default(),
		status:         ProxyStatusCannotConnect,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Mode returns the configured mode.
func (f *Factory) Mode() Mode {
	return f.mode
}

// Start prepares the proxy for the modes that use one: it checks the
// external SOCKS proxy, or launches the embedded daemon. An unusable proxy
// is not an error here; it is logged and every host that needs it is
// refused by ClientFor. Only cancellation of ctx is returned.
func (f *Factory) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return nil
	}
	f.started = true

	switch f.mode {
	case ModeDirect:
		return nil
	case ModeEmbedded:
		f.embedded = NewEmbeddedTor(WithStartupTimeout(f.startupTimeout))
		f.logger.Info("starting embedded Tor daemon", "timeout", f.startupTimeout)
		if err := f.embedded.Start(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Error("embedded Tor daemon failed to start", "error", err)
			return nil
		}
		client, err := f.embedded.NewClient(f.timeout)
		if err != nil {
			f.logger.Error("embedded Tor client unavailable", "error", err)
			return nil
		}
		f.socks = client
		f.status = ProxyStatusOK
		f.logger.Info("embedded Tor daemon ready", "socks", f.embedded.SocksAddr())
		return nil
	default:
		client, err := NewClient(f.proxyAddress, f.timeout)
		if err != nil {
			return err
		}
		f.status = client.CheckConnection(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.status != ProxyStatusOK {
			level := slog.LevelWarn
			if f.mode == ModeAuto {
				level = slog.LevelInfo
			}
			f.logger.Log(ctx, level, "SOCKS proxy not usable",
				"proxy", f.proxyAddress,
				"status", f.status.String(),
			)
			return nil
		}
		f.socks = client
		f.logger.Debug("SOCKS proxy ready", "proxy", f.proxyAddress)
		return nil
	}
}

// ProxyStatus returns the result of the proxy check made by Start.
// It is ProxyStatusCannotConnect before Start and in direct mode.
func (f *Factory) ProxyStatus() ProxyStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// RequiresProxy reports whether requests to host go through the proxy
// under mode. Onion hosts always do.
func RequiresProxy(mode Mode, host string) bool {
	if mode == ModeSOCKS || mode == ModeEmbedded {
		return true
	}
	return IsOnionHost(host)
}

// ClientFor returns an HTTP client for the site of rawURL.
//
// Malformed URLs and onion hosts with a bad checksum wrap ErrInvalidURL.
// A host that needs the proxy while none is usable yields an error
// wrapping ErrProxyUnavailable.
func (f *Factory) ClientFor(rawURL string, site SiteOptions) (*http.Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %s: missing host", ErrInvalidURL, rawURL)
	}
	if err := ValidateOnionHost(u.Host); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidURL, rawURL, err)
	}

	mode := f.mode
	if site.Mode != "" {
		if mode, err = ParseMode(site.Mode); err != nil {
			return nil, err
		}
	}

	if !RequiresProxy(mode, u.Host) {
		dialer := &net.Dialer{Timeout: directDialTimeout, KeepAlive: 30 * time.Second}
		client := newHTTPClient(newTransport(dialer.DialContext), f.timeout)
		return withSiteConfig(client, site.Cookie, site.Headers), nil
	}

	f.mu.Lock()
	socks := f.socks
	status := f.status
	f.mu.Unlock()
	if socks == nil {
		return nil, fmt.Errorf("%w: %s (%s mode, proxy %s)", ErrProxyUnavailable, u.Hostname(), mode, status)
	}
	return socks.HTTPClientWithConfig(site.Cookie, site.Headers), nil
}

// Close stops the embedded daemon, if any.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.socks = nil
	if f.embedded == nil {
		return nil
	}
	err := f.embedded.Stop()
	f.embedded = nil
	return err
}

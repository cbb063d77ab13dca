package source

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/streamwatch/streamwatch/pkg/stream"
)

const (
	defaultScrapeTimeout  = 10 * time.Second
	defaultScrapeInterval = 30 * time.Second
)

// Auth specifies how a scrape request authenticates.
type Auth struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string

	CertFile string
	KeyFile  string
	CAFile   string

	// Header carries the API key when Mode == "apikey".
	Header string
	// KeyEnv, TokenEnv and PasswordEnv name environment variables holding secrets.
	KeyEnv      string
	TokenEnv    string
	Username    string
	PasswordEnv string
}

func (a Auth) env(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// PrometheusConfig describes one scraped endpoint.
type PrometheusConfig struct {
	Name               string
	Endpoint           string
	Interval           time.Duration
	Auth               Auth
	InsecureSkipVerify bool
}

// Scrape is the element emitted for each scrape cycle.
type Scrape struct {
	Endpoint  string
	ScrapedAt time.Time
	Families  map[string]*dto.MetricFamily
	// Err is non-nil if the scrape failed (connectivity, auth, parse).
	Err error
}

// Sum adds up all counter, gauge, or untyped values of the named family.
// Returns 0 if the family is not present.
func (s *Scrape) Sum(name string) float64 {
	if s == nil || s.Families == nil {
		return 0
	}
	return sumFamily(s.Families[name])
}

// Has reports whether the named family was present in the scrape.
func (s *Scrape) Has(name string) bool {
	if s == nil || s.Families == nil {
		return false
	}
	_, ok := s.Families[name]
	return ok
}

type promSource struct {
	cfg    PrometheusConfig
	client *http.Client
}

// Prometheus returns a stream scraping cfg.Endpoint every cfg.Interval
// (default 30s). The first scrape happens immediately.
func Prometheus(cfg PrometheusConfig) (*stream.Source, error) {
	client, err := buildHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("source %q: build http client: %w", cfg.Name, err)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultScrapeInterval
	}
	name := cfg.Name
	if name == "" {
		name = cfg.Endpoint
	}
	p := &promSource{cfg: cfg, client: client}
	return stream.New(name, p.run), nil
}

func (p *promSource) run(ctx context.Context, emit stream.Emit) error {
	t := time.NewTicker(p.cfg.Interval)
	defer t.Stop()
	for {
		emit(p.scrape(ctx))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (p *promSource) scrape(ctx context.Context) *Scrape {
	res := &Scrape{Endpoint: p.cfg.Endpoint, ScrapedAt: time.Now().UTC()}
	mfs, err := fetchMetrics(ctx, p.client, p.cfg.Endpoint)
	if err != nil {
		res.Err = fmt.Errorf("prometheus scrape %q: %w", p.cfg.Endpoint, err)
		slog.Warn("source: prometheus fetch failed", "endpoint", p.cfg.Endpoint, "err", err)
		return res
	}
	res.Families = mfs
	return res
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth Auth
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.env(t.auth.KeyEnv))
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.env(t.auth.TokenEnv))
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.env(t.auth.PasswordEnv))
	}
	return t.base.RoundTrip(req)
}

func buildHTTPClient(cfg PrometheusConfig) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if cfg.Auth.Mode == "mtls" {
		cert, err := tls.LoadX509KeyPair(cfg.Auth.CertFile, cfg.Auth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}

		if cfg.Auth.CAFile != "" {
			caPEM, err := os.ReadFile(cfg.Auth.CAFile)
			if err != nil {
				return nil, fmt.Errorf("read ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caPEM) {
				return nil, fmt.Errorf("no valid certs found in ca file %q", cfg.Auth.CAFile)
			}
			tlsCfg.RootCAs = pool
		}
	}

	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg},
			auth: cfg.Auth,
		},
		Timeout: defaultScrapeTimeout,
	}, nil
}

func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition. A partial result with a
// parse warning is still a success.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}

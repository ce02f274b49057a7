package cookies

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/whisper-darkly/twitch-recorder/logger"
)

// SourceConfig controls how cookie sources are loaded and refreshed.
type SourceConfig struct {
	ExternalEnabled bool          // allow file:// and http(s):// sources
	SafeDomains     string        // comma-separated hosts or CIDRs URL sources may use
	JSONMode        bool          // content is JSON (header strings or a browser export)
	RefreshInterval time.Duration // reload period for external sources (0 = never)
	Channel         string        // for URL template {{.Channel}}
	Driver          string        // for URL template {{.Driver}}
	HTTPClient      *http.Client  // for URL sources, default has a 30s timeout
}

type sourceKind int

const (
	kindLiteral sourceKind = iota
	kindFile
	kindURL
)

// Source is where cookie strings come from: a literal value, a file or a URL.
type Source struct {
	kind     sourceKind
	raw      string // literal value or file path
	rendered string // URL sources: template-rendered URL
	cfg      SourceConfig
}

// NewSource classifies raw and validates the access controls for it.
func NewSource(raw string, cfg SourceConfig) (*Source, error) {
	s := &Source{raw: raw, cfg: cfg}

	switch {
	case strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://"):
		s.kind = kindURL
	case strings.HasPrefix(raw, "file://"):
		s.kind = kindFile
		s.raw = strings.TrimPrefix(raw, "file://")
	default:
		s.kind = kindLiteral
	}

	if s.kind != kindLiteral && !cfg.ExternalEnabled {
		return nil, fmt.Errorf("external cookie sources must be enabled explicitly (got %q)", raw)
	}

	if s.kind == kindURL {
		rendered, err := renderURL(raw, cfg)
		if err != nil {
			return nil, fmt.Errorf("render cookie URL template: %w", err)
		}
		if err := validateSafeDomain(rendered, cfg.SafeDomains); err != nil {
			return nil, err
		}
		s.rendered = rendered
	}
	if s.cfg.HTTPClient == nil {
		s.cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	return s, nil
}

// Load fetches the cookie strings.
func (s *Source) Load(ctx context.Context) ([]string, error) {
	switch s.kind {
	case kindLiteral:
		return []string{s.raw}, nil
	case kindFile:
		data, err := os.ReadFile(s.raw)
		if err != nil {
			return nil, fmt.Errorf("read cookie file %q: %w", s.raw, err)
		}
		return s.parseContent(data)
	case kindURL:
		return s.loadURL(ctx)
	default:
		return nil, fmt.Errorf("unknown source kind")
	}
}

// StartRefresh reloads the source into pool every RefreshInterval until ctx
// is done. Literal sources never change and are not refreshed.
func (s *Source) StartRefresh(ctx context.Context, pool *Pool, log *logger.Logger) {
	if s.kind == kindLiteral || s.cfg.RefreshInterval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(s.cfg.RefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				raw, err := s.Load(ctx)
				if err != nil {
					log.Warn("cookie refresh failed: %v", err)
					continue
				}
				pool.Update(raw)
				log.Debug("cookie pool refreshed: %d entries", pool.Count())
			}
		}
	}()
}

func (s *Source) loadURL(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.rendered, nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie request: %w", err)
	}

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch cookies from %s: %w", s.rendered, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("cookie URL returned %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read cookie response: %w", err)
	}
	return s.parseContent(body)
}

func (s *Source) parseContent(data []byte) ([]string, error) {
	raw, err := ParseContent(data, s.cfg.JSONMode)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no cookies found in %s", s.describe())
	}
	return raw, nil
}

func (s *Source) describe() string {
	if s.kind == kindURL {
		return s.rendered
	}
	return s.raw
}

// renderURL applies {{.Channel}} and {{.Driver}} to a URL template.
func renderURL(raw string, cfg SourceConfig) (string, error) {
	tmpl, err := template.New("cookie-url").Parse(raw)
	if err != nil {
		return "", err
	}

	data := struct {
		Channel string
		Driver  string
	}{cfg.Channel, cfg.Driver}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// validateSafeDomain checks that the URL's host is an allowed domain (or a
// subdomain of one) or resolves into an allowed CIDR range.
func validateSafeDomain(rawURL, safeDomains string) error {
	if strings.TrimSpace(safeDomains) == "" {
		return fmt.Errorf("URL cookie sources require a safe domain list")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse cookie URL: %w", err)
	}
	host := u.Hostname()

	var cidrs []*net.IPNet
	for _, token := range strings.Split(safeDomains, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if _, cidr, err := net.ParseCIDR(token); err == nil {
			cidrs = append(cidrs, cidr)
			continue
		}
		if host == token || strings.HasSuffix(host, "."+token) {
			return nil
		}
	}

	if len(cidrs) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		addrs, err := net.DefaultResolver.LookupHost(ctx, host)
		if err != nil {
			return fmt.Errorf("resolve cookie host %q: %w", host, err)
		}
		for _, addr := range addrs {
			ip := net.ParseIP(addr)
			if ip == nil {
				continue
			}
			for _, cidr := range cidrs {
				if cidr.Contains(ip) {
					return nil
				}
			}
		}
	}

	return fmt.Errorf("cookie URL host %q is not in the safe domain list (%s)", host, safeDomains)
}

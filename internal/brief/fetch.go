package brief

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pauljones0/creator-deal-tracker/internal/models"
	"github.com/pauljones0/creator-deal-tracker/internal/util"
)

// MaxDownloadBytes caps how much of a hosted brief is read.
const MaxDownloadBytes = 2 << 20

const maxRedirects = 5

var errBlockedAddress = fmt.Errorf("%w: brief URL resolves to a non-public address", models.ErrValidation)

// Fetcher downloads briefs that brands host as web pages.
type Fetcher struct {
	httpClient   *http.Client
	allowedHosts []string
	allowPrivate bool
}

type FetcherOption func(*Fetcher)

// AllowPrivateNetworks lets the fetcher reach loopback, private and link-local
// addresses. Only for self-hosted setups where briefs live on an intranet.
func AllowPrivateNetworks(allow bool) FetcherOption {
	return func(f *Fetcher) { f.allowPrivate = allow }
}

// NewFetcher returns a Fetcher. An empty allowlist permits any public host.
func NewFetcher(allowedHosts []string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{allowedHosts: allowedHosts}
	for _, opt := range opts {
		opt(f)
	}

	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		// Runs on the resolved address, so DNS names pointing inward are caught too.
		Control: func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			if !f.allowPrivate && !publicAddress(net.ParseIP(host)) {
				return errBlockedAddress
			}
			return nil
		},
	}
	f.httpClient = &http.Client{
		Timeout: 20 * time.Second,
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
		},
		CheckRedirect: f.checkRedirect,
	}
	return f
}

func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("%w: brief URL redirected too many times", models.ErrValidation)
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("%w: brief redirected to unsupported scheme %s", models.ErrValidation, req.URL.Scheme)
	}
	if !f.hostAllowed(req.URL.Hostname()) {
		return fmt.Errorf("%w: brief redirected to host %s which is not in allowlist", models.ErrValidation, req.URL.Hostname())
	}
	return nil
}

// publicAddress reports whether ip is routable on the public internet.
func publicAddress(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() {
		return false
	}
	return !sharedAddressSpace.Contains(ip)
}

// 100.64.0.0/10, carrier-grade NAT.
var sharedAddressSpace = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// Fetch downloads rawURL and returns its readable text.
// Bad URLs and disallowed hosts are validation errors.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	normalized, err := util.NormalizeURL(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid brief URL: %w", models.ErrValidation, err)
	}
	parsedURL, _ := url.Parse(normalized)
	if !f.hostAllowed(parsedURL.Hostname()) {
		return "", fmt.Errorf("%w: brief host %s is not in allowlist", models.ErrValidation, parsedURL.Hostname())
	}
	if ip := net.ParseIP(parsedURL.Hostname()); ip != nil && !f.allowPrivate && !publicAddress(ip) {
		return "", errBlockedAddress
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, normalized, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request for URL %s: %w", normalized, err)
	}
	req.Header.Set("Accept", "text/html, text/plain;q=0.9")

	res, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL %s: %w", normalized, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch URL %s: status code %d", normalized, res.StatusCode)
	}

	body := io.LimitReader(res.Body, MaxDownloadBytes)
	mediaType, _, _ := mime.ParseMediaType(res.Header.Get("Content-Type"))
	if mediaType == "text/plain" {
		data, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("failed to read brief body: %w", err)
		}
		return util.CollapseWhitespace(string(data)), nil
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", fmt.Errorf("failed to parse brief page %s: %w", normalized, err)
	}
	text := documentText(doc)
	slog.Info("Fetched hosted brief", "host", parsedURL.Hostname(), "chars", len(text))
	return text, nil
}

func (f *Fetcher) hostAllowed(host string) bool {
	if len(f.allowedHosts) == 0 {
		return true
	}
	for _, h := range f.allowedHosts {
		if host == h {
			return true
		}
	}
	return false
}

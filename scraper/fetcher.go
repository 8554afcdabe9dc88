package scraper

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
)

const (
	// UpstreamURL is the schedule page the service mirrors.
	UpstreamURL = "https://zqbaba.org"

	// DefaultTimeout bounds one schedule fetch.
	DefaultTimeout = 15 * time.Second

	// ProbeTimeout bounds a reachability probe.
	ProbeTimeout = 10 * time.Second

	// UpstreamEncoding is what the page is served in. GB18030 is used to
	// decode it since it is a strict superset of GB2312.
	UpstreamEncoding = "gb2312"

	// maxBodySize caps how much of the page is read.
	maxBodySize = 8 << 20
)

var browserHeaders = map[string]string{
	"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "zh-CN,zh;q=0.9,en;q=0.8",
	"Accept-Encoding":           "gzip, deflate, br",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
}

// ErrorKind classifies fetch failures.
type ErrorKind string

const (
	KindNetwork ErrorKind = "network"
	KindStatus  ErrorKind = "status"
	KindRead    ErrorKind = "read"
	KindDecode  ErrorKind = "decode"
)

// FetchError is returned for every failed fetch. The cache treats it as "no
// data this cycle".
type FetchError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Kind == KindStatus:
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetcherConfig holds the fetcher's settings. Zero values fall back to the
// defaults above.
type FetcherConfig struct {
	URL          string
	Timeout      time.Duration
	ProbeTimeout time.Duration
	Transport    http.RoundTripper
}

// Fetcher downloads and decodes the schedule page.
type Fetcher struct {
	url         string
	httpClient  *http.Client
	probeClient *http.Client
}

// NewFetcher creates a fetcher for UpstreamURL.
func NewFetcher() *Fetcher {
	return NewFetcherWithConfig(FetcherConfig{})
}

// NewFetcherWithConfig creates a fetcher with custom settings.
func NewFetcherWithConfig(cfg FetcherConfig) *Fetcher {
	if cfg.URL == "" {
		cfg.URL = UpstreamURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = ProbeTimeout
	}

	return &Fetcher{
		url:         cfg.URL,
		httpClient:  &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		probeClient: &http.Client{Timeout: cfg.ProbeTimeout, Transport: cfg.Transport},
	}
}

// URL returns the page being fetched.
func (f *Fetcher) URL() string {
	return f.url
}

// Fetch downloads the page and returns it as UTF-8 text.
func (f *Fetcher) Fetch(ctx context.Context) (string, error) {
	resp, err := f.do(ctx, f.httpClient)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", &FetchError{Kind: KindStatus, URL: f.url, StatusCode: resp.StatusCode}
	}

	raw, err := readBody(resp)
	if err != nil {
		return "", &FetchError{Kind: KindRead, URL: f.url, StatusCode: resp.StatusCode, Err: err}
	}

	text, err := decodeBody(raw, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", &FetchError{Kind: KindDecode, URL: f.url, StatusCode: resp.StatusCode, Err: err}
	}
	return text, nil
}

// ProbeResult describes upstream reachability.
type ProbeResult struct {
	StatusCode   int
	Available    bool
	ResponseSize int
}

// Probe issues one GET and reports status and body size without decoding.
func (f *Fetcher) Probe(ctx context.Context) (ProbeResult, error) {
	resp, err := f.do(ctx, f.probeClient)
	if err != nil {
		return ProbeResult{}, err
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return ProbeResult{}, &FetchError{Kind: KindRead, URL: f.url, StatusCode: resp.StatusCode, Err: err}
	}

	return ProbeResult{
		StatusCode:   resp.StatusCode,
		Available:    resp.StatusCode == http.StatusOK,
		ResponseSize: len(body),
	}, nil
}

func (f *Fetcher) do(ctx context.Context, client *http.Client) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: f.url, Err: err}
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: f.url, Err: err}
	}
	return resp, nil
}

// readBody reads the body and undoes Content-Encoding. Setting
// Accept-Encoding by hand turns off the transport's transparent gzip.
func readBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}

	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
		return raw, nil
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	case "deflate":
		// Servers disagree on whether deflate is zlib-wrapped.
		if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			defer zr.Close()
			r = zr
		} else {
			fr := flate.NewReader(bytes.NewReader(raw))
			defer fr.Close()
			r = fr
		}
	case "br":
		r = brotli.NewReader(bytes.NewReader(raw))
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}

	return io.ReadAll(io.LimitReader(r, maxBodySize))
}

// decodeBody converts the page to UTF-8. A charset named in Content-Type is
// tried first and only accepted if it decodes without a single replacement
// rune; otherwise the known upstream encoding is used, which tolerates a few
// stray bytes but rejects text that is mostly undecodable.
func decodeBody(raw []byte, contentType string) (string, error) {
	encs := candidateEncodings(contentType)
	var lastErr error
	for i, enc := range encs {
		out, err := enc.NewDecoder().Bytes(raw)
		if err != nil {
			lastErr = err
			continue
		}
		text := string(out)
		tolerance := -1
		if i == len(encs)-1 {
			tolerance = garbledLimit(text)
		}
		if err := checkGarbled(text, tolerance); err != nil {
			lastErr = err
			continue
		}
		return text, nil
	}
	return "", lastErr
}

func candidateEncodings(contentType string) []encoding.Encoding {
	var encs []encoding.Encoding
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if name := params["charset"]; name != "" {
			if enc, _ := charset.Lookup(name); enc != nil {
				encs = append(encs, enc)
			}
		}
	}
	return append(encs, simplifiedchinese.GB18030)
}

// garbledLimit is how many replacement runes the upstream encoding may
// produce: 1% of the text, at least 8.
func garbledLimit(text string) int {
	limit := utf8.RuneCountInString(text) / 100
	if limit < 8 {
		limit = 8
	}
	return limit
}

// checkGarbled fails when text holds more than limit replacement runes. A
// negative limit allows none.
func checkGarbled(text string, limit int) error {
	bad := strings.Count(text, string(utf8.RuneError))
	if limit < 0 {
		limit = 0
	}
	if bad > limit {
		return fmt.Errorf("%d of %d runes could not be decoded", bad, utf8.RuneCountInString(text))
	}
	return nil
}

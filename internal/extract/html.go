package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// FetchTimeout bounds a job posting download.
const FetchTimeout = 15 * time.Second

const (
	userAgent    = "Mozilla/5.0 (compatible; jobpilot/1.0)"
	maxPageBytes = 5 << 20
)

var (
	noiseSelectors = "script, style, nav, header, footer, iframe, noscript, form, svg, " +
		".menu, .navigation, .social, .banner, .ads, .cookie, .popup"
	blockSelectors = "p, li, h1, h2, h3, h4, h5, h6"
	whitespace     = regexp.MustCompile(`\s+`)
)

// FetchError reports a failed job posting download.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: HTTP status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FetchJobPosting downloads a job posting and returns its readable text.
// A nil client uses one with FetchTimeout.
func FetchJobPosting(ctx context.Context, client *http.Client, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", &FetchError{URL: rawURL, Err: fmt.Errorf("invalid URL")}
	}
	if client == nil {
		client = &http.Client{Timeout: FetchTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")

	resp, err := client.Do(req)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body := io.LimitReader(resp.Body, maxPageBytes)
	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "text/plain") {
		r, err := charset.NewReader(body, contentType)
		if err != nil {
			return "", &FetchError{URL: rawURL, Err: err}
		}
		b, err := io.ReadAll(r)
		if err != nil {
			return "", &FetchError{URL: rawURL, Err: err}
		}
		return strings.TrimSpace(string(b)), nil
	}
	return HTML(body, contentType)
}

// HTML converts an HTML page to text: navigation and scripts are removed,
// then paragraph, list and heading blocks are joined by blank lines. Pages
// without such blocks fall back to their whitespace-collapsed body text.
// contentType may carry a charset parameter; otherwise it is sniffed.
func HTML(r io.Reader, contentType string) (string, error) {
	utf8Reader, err := charset.NewReader(r, contentType)
	if err != nil {
		return "", fmt.Errorf("detecting charset: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(utf8Reader)
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	doc.Find(noiseSelectors).Remove()

	var blocks []string
	doc.Find(blockSelectors).Each(func(_ int, s *goquery.Selection) {
		// Nested blocks (a <p> inside an <li>) are emitted by the outer one.
		if s.ParentsFiltered(blockSelectors).Length() > 0 {
			return
		}
		if text := collapse(s.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})
	if len(blocks) > 0 {
		return strings.Join(blocks, "\n\n"), nil
	}
	return collapse(doc.Find("body").Text()), nil
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

package metrics

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"
)

// harDoc is the subset of the HTTP Archive format pagepulse reads.
type harDoc struct {
	Log struct {
		Pages []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"pages"`
		Entries []harEntry `json:"entries"`
	} `json:"log"`
}

type harEntry struct {
	Request struct {
		URL     string      `json:"url"`
		Headers []harHeader `json:"headers"`
	} `json:"request"`
	Response struct {
		Status      int    `json:"status"`
		HTTPVersion string `json:"httpVersion"`
		HeadersSize int64  `json:"headersSize"`
		BodySize    int64  `json:"bodySize"`
		Headers     []harHeader `json:"headers"`
		Content     struct {
			Size     int64  `json:"size"`
			MimeType string `json:"mimeType"`
		} `json:"content"`
	} `json:"response"`
}

type harHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FromHAR extracts a measured Page from a HAR capture. The first entry
// is taken as the main document; its host classifies third parties.
// Metrics a HAR cannot answer (DOM size, cache hit rate, oversized
// images) are simply absent from the record.
func FromHAR(data []byte) (Page, error) {
	var doc harDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return Page{}, fmt.Errorf("unmarshaling HAR: %w", err)
	}
	entries := doc.Log.Entries
	if len(entries) == 0 {
		return Page{}, fmt.Errorf("HAR contains no entries")
	}

	pageURL := entries[0].Request.URL
	firstHost := hostOf(pageURL)

	var (
		transferBytes int64
		redirects     float64
		errs          float64
		thirdParty    float64
		modern        float64
		cookieBytes   int64
		fontsExternal bool
	)

	for _, e := range entries {
		transferBytes += entryTransfer(e)

		switch {
		case e.Response.Status >= 300 && e.Response.Status < 400:
			redirects++
		case e.Response.Status >= 400 || e.Response.Status == 0:
			errs++
		}

		host := hostOf(e.Request.URL)
		external := firstHost != "" && host != "" && !sameSite(host, firstHost)
		if external {
			thirdParty++
		}
		if external && isFont(e) {
			fontsExternal = true
		}

		if modernProtocol(e.Response.HTTPVersion) {
			modern++
		}

		cookieBytes += int64(len(headerValue(e.Request.Headers, "cookie")))
	}

	http2Pct := 100 * modern / float64(len(entries))

	rec := Record{
		"requests":           Number(float64(len(entries))),
		"transferKB":         Number(math.Round(float64(transferBytes) / 1024)),
		"redirects":          Number(redirects),
		"errors":             Number(errs),
		"thirdPartyRequests": Number(thirdParty),
		"http2Pct":           Number(math.Round(http2Pct)),
		"cookieKB":           Number(math.Round(float64(cookieBytes) / 1024)),
		"hstsMissing":        Bool(headerValue(entries[0].Response.Headers, "strict-transport-security") == ""),
		"fontsExternal":      Bool(fontsExternal),
	}

	name := pageURL
	if len(doc.Log.Pages) > 0 && doc.Log.Pages[0].Title != "" {
		name = doc.Log.Pages[0].Title
	}
	return Page{Name: name, URL: pageURL, Metrics: rec}, nil
}

// entryTransfer picks the best available on-the-wire size for an entry.
// HAR writers use -1 for unknown sizes.
func entryTransfer(e harEntry) int64 {
	if e.Response.BodySize >= 0 {
		total := e.Response.BodySize
		if e.Response.HeadersSize > 0 {
			total += e.Response.HeadersSize
		}
		return total
	}
	if e.Response.Content.Size > 0 {
		return e.Response.Content.Size
	}
	return 0
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// sameSite treats exact host matches and subdomains of the page host as
// first-party. Without a public-suffix list this is approximate, but it
// errs on the first-party side.
func sameSite(host, pageHost string) bool {
	return host == pageHost || strings.HasSuffix(host, "."+pageHost)
}

func modernProtocol(version string) bool {
	v := strings.ToLower(version)
	return strings.HasPrefix(v, "h2") || strings.HasPrefix(v, "h3") ||
		strings.HasPrefix(v, "http/2") || strings.HasPrefix(v, "http/3")
}

func isFont(e harEntry) bool {
	if strings.Contains(strings.ToLower(e.Response.Content.MimeType), "font") {
		return true
	}
	u := strings.ToLower(e.Request.URL)
	for _, ext := range []string{".woff2", ".woff", ".ttf", ".otf", ".eot"} {
		if strings.Contains(u, ext) {
			return true
		}
	}
	return false
}

func headerValue(headers []harHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

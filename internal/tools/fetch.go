package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
)

// FetchURLName is the tool name skills use to request URL fetching.
const FetchURLName = "fetch_url"

const userAgent = "TellMeNow/1.0 (+report generator)"

// FetchURL fetches a web page and returns its content, converting HTML to
// markdown. Bodies larger than maxBytes are truncated and flagged.
type FetchURL struct {
	client    *http.Client
	maxBytes  int64
	converter *md.Converter
}

// NewFetchURL creates the fetch_url tool.
func NewFetchURL(timeout time.Duration, maxBytes int64) *FetchURL {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	return &FetchURL{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after %d redirects", len(via))
				}
				if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
					return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
				}
				return nil
			},
		},
		maxBytes:  maxBytes,
		converter: converter,
	}
}

// Name implements llm.Tool.
func (f *FetchURL) Name() string { return FetchURLName }

// Description implements llm.Tool.
func (f *FetchURL) Description() string {
	return "Fetch the content of a web page by URL. HTML is returned as markdown. " +
		fmt.Sprintf("Responses larger than %d bytes are truncated.", f.maxBytes)
}

// Parameters implements llm.Tool.
func (f *FetchURL) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Absolute http or https URL to fetch",
			},
		},
		"required": []string{"url"},
	}
}

type fetchArgs struct {
	URL string `json:"url"`
}

// Run implements llm.Tool.
func (f *FetchURL) Run(ctx context.Context, arguments string, progress func(string)) string {
	var args fetchArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return ErrorResult("invalid arguments", `Pass a JSON object like {"url": "https://example.com"}`)
	}

	u, err := url.Parse(strings.TrimSpace(args.URL))
	if err != nil || u.Host == "" {
		return ErrorResult(fmt.Sprintf("invalid URL %q", args.URL), "Use an absolute URL including the scheme")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrorResult(fmt.Sprintf("unsupported URL scheme %q", u.Scheme), "Only http and https URLs can be fetched")
	}

	progress("Fetching URL " + u.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return ErrorResult(fmt.Sprintf("build request: %v", err), "")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,text/plain,application/json;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return ErrorResult(fmt.Sprintf("fetch %s: %v", u, err), "The site may be unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return ErrorResult(fmt.Sprintf("read %s: %v", u, err), "")
	}
	truncated := int64(len(body)) > f.maxBytes
	if truncated {
		body = body[:f.maxBytes]
	}

	contentType := resp.Header.Get("Content-Type")
	content := string(body)
	if isHTML(contentType, body) {
		if converted, convErr := f.converter.ConvertString(content); convErr == nil {
			content = converted
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "URL: %s\nStatus: %d\n", u, resp.StatusCode)
	if contentType != "" {
		fmt.Fprintf(&sb, "Content-Type: %s\n", contentType)
	}
	if truncated {
		fmt.Fprintf(&sb, "Truncated: true (first %d bytes)\n", f.maxBytes)
	}
	sb.WriteString("\n")
	sb.WriteString(strings.TrimSpace(content))
	return sb.String()
}

func isHTML(contentType string, body []byte) bool {
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			return mediaType == "text/html" || mediaType == "application/xhtml+xml"
		}
	}
	return strings.Contains(http.DetectContentType(body), "text/html")
}

// Package report turns model-generated HTML body content into a complete,
// self-contained report page.
package report

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/raphaelgruber/tellmenow/internal/models"
)

// titleFallbackRunes bounds the query-derived title when no <h1> is present.
const titleFallbackRunes = 80

var (
	doctypeRe = regexp.MustCompile(`(?i)<!DOCTYPE[^>]*>`)
	htmlTagRe = regexp.MustCompile(`(?i)</?html[^>]*>`)
	headRe    = regexp.MustCompile(`(?is)<head>.*?</head>`)
	bodyTagRe = regexp.MustCompile(`(?i)</?body[^>]*>`)
	scriptRe  = regexp.MustCompile(`(?is)<script>.*?</script>`)
)

//go:embed template.html
var pageTemplate string

var page = template.Must(template.New("report").Parse(pageTemplate))

// Clean strips wrapping markdown fences and any full-page markup the model
// emitted around the body content.
func Clean(raw string) string {
	text := strings.TrimSpace(raw)

	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		lines = lines[1:]
		if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "```" {
			lines = lines[:n-1]
		}
		text = strings.Join(lines, "\n")
	}

	text = doctypeRe.ReplaceAllString(text, "")
	text = htmlTagRe.ReplaceAllString(text, "")
	text = headRe.ReplaceAllString(text, "")
	text = bodyTagRe.ReplaceAllString(text, "")
	text = scriptRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// ExtractTitle returns the text of the first <h1> in content, or the first
// 80 characters of fallback when there is none.
func ExtractTitle(content, fallback string) string {
	nodes, err := html.ParseFragment(strings.NewReader(content), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err == nil {
		for _, n := range nodes {
			if h1 := findFirst(n, "h1"); h1 != nil {
				if title := strings.Join(strings.Fields(textOf(h1)), " "); title != "" {
					return title
				}
			}
		}
	}
	return models.Truncate(fallback, titleFallbackRunes)
}

// Build wraps body content in the report page. The title is escaped, the
// content is inserted verbatim.
func Build(content, title string) (string, error) {
	var buf bytes.Buffer
	err := page.Execute(&buf, struct {
		Title   string
		Content template.HTML
	}{title, template.HTML(content)})
	if err != nil {
		return "", fmt.Errorf("render report page: %w", err)
	}
	return buf.String(), nil
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
			sb.WriteByte(' ')
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

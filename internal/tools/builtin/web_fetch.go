package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"aide/internal/agent/ports"
	"aide/internal/tools"
)

const maxFetchBytes = 2 * 1024 * 1024

type fetchURLTool struct{ deps *Deps }

func (t *fetchURLTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "fetch_url",
		Description: "Fetch a web page and return its readable text content (title, headings, paragraphs, lists).",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"url": {Type: "string", Description: "Full URL to fetch (http/https)."},
			},
			Required: []string{"url"},
		},
	}
}

func (t *fetchURLTool) Execute(ctx context.Context, req *ports.ToolRequest) *ports.ToolOutcome {
	rawURL := tools.StringArg(req.Input, "url")
	parsed, err := neturl.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return ports.ToolError(fmt.Sprintf("invalid url %q: must be http or https", rawURL))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ports.ToolError(fmt.Sprintf("building request: %v", err))
	}
	httpReq.Header.Set("User-Agent", "aide-agent/1.0")

	resp, err := t.deps.HTTPClient.Do(httpReq)
	if err != nil {
		return ports.ToolError(fmt.Sprintf("fetching %s: %v", rawURL, err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return ports.ToolError(fmt.Sprintf("reading %s: %v", rawURL, err))
	}
	if resp.StatusCode != http.StatusOK {
		return ports.ToolError(fmt.Sprintf("fetch error (status %d): %s", resp.StatusCode, truncate(string(body), 500)))
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "html") {
		return ports.ToolOK(truncate(string(body), maxFetchBytes), "Fetched "+rawURL)
	}

	text, err := htmlToText(string(body))
	if err != nil {
		return ports.ToolError(fmt.Sprintf("parsing %s: %v", rawURL, err))
	}
	return ports.ToolOK(text, "Fetched "+rawURL)
}

// htmlToText strips chrome elements and flattens the document into readable
// lines.
func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, nav, footer, header, aside, iframe").Remove()

	var out strings.Builder
	if title := strings.TrimSpace(doc.Find("title").Text()); title != "" {
		out.WriteString("Title: " + title + "\n\n")
	}
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(i int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			out.WriteString("# " + text + "\n")
		}
	})
	doc.Find("p, article, section").Each(func(i int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); len(text) > 20 {
			out.WriteString(text + "\n\n")
		}
	})
	doc.Find("li").Each(func(i int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			out.WriteString("- " + text + "\n")
		}
	})
	result := strings.TrimSpace(out.String())
	if result == "" {
		result = strings.TrimSpace(doc.Text())
	}
	return truncate(result, maxFetchBytes), nil
}

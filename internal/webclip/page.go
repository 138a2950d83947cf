package webclip

import (
	"bytes"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	mdConverter = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
	pagePolicy = newPagePolicy()
)

func newPagePolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.SkipElementsContent("head", "title", "nav", "footer")
	return p
}

// Title returns the whitespace-collapsed <title> of an HTML page, or "".
func Title(page []byte) string {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return ""
	}
	return findTitle(doc)
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		var sb strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			}
		}
		return strings.Join(strings.Fields(sb.String()), " ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

// Markdown sanitizes an HTML page and converts it to Markdown. Relative
// links are resolved against pageURL.
func Markdown(page []byte, pageURL string) (string, error) {
	clean := pagePolicy.SanitizeBytes(page)
	var opts []converter.ConvertOptionFunc
	if strings.HasPrefix(pageURL, "http") {
		opts = append(opts, converter.WithDomain(pageURL))
	}
	md, err := mdConverter.ConvertString(string(clean), opts...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(md), nil
}

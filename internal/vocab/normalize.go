package vocab

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// Normalize canonicalizes headline text for matching:
// strip markup, NFKC-compose, drop periods (so "U.S." matches "US"),
// lowercase, collapse whitespace.
//
// Idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	if strings.ContainsRune(s, '<') {
		s = stripMarkup(s)
	}
	s = norm.NFKC.String(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}

// stripMarkup extracts visible text from HTML fragments that feed
// titles sometimes carry, skipping script/style content.
func stripMarkup(s string) string {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}

	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			}
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)
	return buf.String()
}

package util

import (
	"path"
	"strings"

	"golang.org/x/net/html"
)

// ParseLinks walks an HTML node tree depth-first and returns the base name of
// every <a href> ending with suffix (case-insensitive), in document order and
// without duplicates. Links to the root ("/") are ignored.
func ParseLinks(n *html.Node, suffix string) []string {
	var out []string
	seen := make(map[string]struct{})
	lowerSuffix := strings.ToLower(suffix)

	var walk func(*html.Node)
	walk = func(nd *html.Node) {
		if nd.Type == html.ElementNode && nd.Data == "a" {
			for _, a := range nd.Attr {
				if a.Key != "href" {
					continue
				}
				if a.Val != "/" && strings.HasSuffix(strings.ToLower(a.Val), lowerSuffix) {
					name := path.Base(a.Val)
					if _, dup := seen[name]; !dup {
						seen[name] = struct{}{}
						out = append(out, name)
					}
				}
				break
			}
		}
		for c := nd.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return out
}

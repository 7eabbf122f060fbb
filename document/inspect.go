package document

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Resource is one reference from the document that the browser would fetch
// while loading it.
type Resource struct {
	Tag string
	URL string
}

// Report summarises what a document pulls in from outside itself.
type Report struct {
	Resources []Resource
}

// HasExternal reports whether loading the document triggers any fetch.
func (r *Report) HasExternal() bool {
	return r != nil && len(r.Resources) > 0
}

// fetchingElements matches elements whose attributes make the browser issue
// a request during load.
var fetchingElements = cascadia.MustCompile(
	"img[src], img[srcset], script[src], iframe[src], source[src], source[srcset], " +
		"video[src], video[poster], audio[src], embed[src], object[data], input[type=image][src], " +
		"link[href]",
)

// loadingLinkRels are link rel values that cause a fetch.
var loadingLinkRels = map[string]bool{
	"stylesheet":    true,
	"preload":       true,
	"icon":          true,
	"shortcut icon": true,
	"import":        true,
	"manifest":      true,
}

var cssURL = regexp.MustCompile(`(?i)url\(\s*['"]?([^'")\s]+)|@import\s+['"]([^'"]+)`)

// Inspect parses html and lists every external resource it references:
// remote, protocol-relative or relative URLs in fetching elements, plus
// url() and @import references in style blocks and style attributes.
// data:, blob:, javascript: and fragment references are inline.
func Inspect(html string) (*Report, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	report := &Report{}
	add := func(tag, ref string) {
		ref = strings.TrimSpace(ref)
		if isInline(ref) {
			return
		}
		report.Resources = append(report.Resources, Resource{Tag: tag, URL: ref})
	}

	doc.FindMatcher(fetchingElements).Each(func(_ int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		if tag == "link" {
			rel := strings.ToLower(strings.TrimSpace(s.AttrOr("rel", "")))
			if !loadingLinkRels[rel] {
				return
			}
			add(tag, s.AttrOr("href", ""))
			return
		}
		for _, attr := range []string{"src", "data", "poster"} {
			if v, ok := s.Attr(attr); ok {
				add(tag, v)
			}
		}
		if v, ok := s.Attr("srcset"); ok {
			for _, candidate := range strings.Split(v, ",") {
				if fields := strings.Fields(candidate); len(fields) > 0 {
					add(tag, fields[0])
				}
			}
		}
	})

	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		for _, ref := range cssRefs(s.Text()) {
			add("style", ref)
		}
	})
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		for _, ref := range cssRefs(s.AttrOr("style", "")) {
			add(goquery.NodeName(s), ref)
		}
	})

	return report, nil
}

func cssRefs(css string) []string {
	var refs []string
	for _, m := range cssURL.FindAllStringSubmatch(css, -1) {
		if m[1] != "" {
			refs = append(refs, m[1])
		} else if m[2] != "" {
			refs = append(refs, m[2])
		}
	}
	return refs
}

func isInline(ref string) bool {
	if ref == "" || strings.HasPrefix(ref, "#") {
		return true
	}
	lower := strings.ToLower(ref)
	for _, scheme := range []string{"data:", "blob:", "javascript:", "about:"} {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

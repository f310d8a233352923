package proxy

import (
	"bytes"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"

	"golang.org/x/net/html"
)

// hideBatchSize is the maximum number of selectors in a single CSS rule.
const hideBatchSize = 100

// injectCosmetics adds the cosmetic filters for the page of fs to the HTML
// response res.
func (s *Server) injectCosmetics(fs *session, res *http.Response) (err error) {
	cosmetic := s.shields.URLCosmeticResources(fs.url)

	body, err := readBody(res, s.maxBodySize)
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}

	page := scanPage(body)

	selectors := cosmetic.HideSelectors
	if !cosmetic.Generichide {
		keyed := s.shields.HiddenClassIDSelectors(page.classes, page.ids, cosmetic.Exceptions)
		selectors = append(slices.Clip(selectors), keyed...)
	}

	injection := buildInjection(selectors, cosmetic.InjectedScript)
	if len(injection) == 0 {
		setBody(res, body)

		return nil
	}

	s.logger.Debug(
		"injecting cosmetic filters",
		"id", fs.id,
		"hostname", fs.hostname,
		"selectors", len(selectors),
		"scripts", cosmetic.InjectedScript != "",
	)

	modified := make([]byte, 0, len(body)+len(injection))
	modified = append(modified, body[:page.headEnd]...)
	modified = append(modified, injection...)
	modified = append(modified, body[page.headEnd:]...)

	setBody(res, modified)

	return nil
}

// pageInfo is the information about an HTML page needed to inject the
// cosmetic filters.
type pageInfo struct {
	// classes are the sorted unique classes of the page elements.
	classes []string

	// ids are the sorted unique ids of the page elements.
	ids []string

	// headEnd is the offset right after the <head> start tag or, if there
	// is none, after the <html> start tag or 0.
	headEnd int
}

// scanPage collects the information about the HTML page body.
func scanPage(body []byte) (p *pageInfo) {
	p = &pageInfo{
		headEnd: -1,
	}

	classes := map[string]struct{}{}
	ids := map[string]struct{}{}
	htmlEnd := 0
	offset := 0

	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}

		offset += len(z.Raw())
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}

		name, hasAttr := z.TagName()
		switch string(name) {
		case "head":
			if p.headEnd == -1 {
				p.headEnd = offset
			}
		case "html":
			if htmlEnd == 0 {
				htmlEnd = offset
			}
		}

		for hasAttr {
			var key, val []byte
			key, val, hasAttr = z.TagAttr()
			switch string(key) {
			case "class":
				for _, c := range strings.Fields(string(val)) {
					classes[c] = struct{}{}
				}
			case "id":
				if id := strings.TrimSpace(string(val)); id != "" {
					ids[id] = struct{}{}
				}
			}
		}
	}

	if p.headEnd == -1 {
		p.headEnd = htmlEnd
	}

	p.classes = slices.Sorted(maps.Keys(classes))
	p.ids = slices.Sorted(maps.Keys(ids))

	return p
}

// buildInjection returns the HTML code that hides the elements matching
// selectors and runs script.
func buildInjection(selectors []string, script string) (injection []byte) {
	buf := &bytes.Buffer{}
	if len(selectors) > 0 {
		buf.WriteString("<style>")
		for batch := range slices.Chunk(selectors, hideBatchSize) {
			buf.WriteString(escapeClosingTags(strings.Join(batch, ", ")))
			buf.WriteString(" { display: none !important; }\n")
		}

		buf.WriteString("</style>")
	}

	if script != "" {
		buf.WriteString("<script>")
		buf.WriteString(escapeClosingTags(script))
		buf.WriteString("</script>")
	}

	return buf.Bytes()
}

// escapeClosingTags prevents the injected code from closing its element
// early.
func escapeClosingTags(s string) (escaped string) {
	return strings.ReplaceAll(s, "</", `<\/`)
}

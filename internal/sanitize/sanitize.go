// Package sanitize strips untrusted HTML down to a fixed allow-list before it
// leaves the system in an email payload or a public page. It is the only
// HTML-injection defense, so every outbound path must pass through Sanitize.
package sanitize

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// allowedTags is the full set of tags that survive sanitization.
var allowedTags = map[string]bool{
	"p": true, "br": true, "strong": true, "em": true, "b": true, "i": true,
	"u": true, "s": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "li": true, "a": true, "blockquote": true,
	"pre": true, "code": true, "img": true, "hr": true, "span": true,
	"div": true, "table": true, "thead": true, "tbody": true, "tr": true,
	"th": true, "td": true,
}

// allowedAttrs maps tag name to its permitted attributes. "style" is allowed
// on every tag.
var allowedAttrs = map[string]map[string]bool{
	"a":   {"href": true, "title": true, "target": true},
	"img": {"src": true, "alt": true, "width": true, "height": true},
}

// dropContentTags have their entire content removed, not just the tags.
var dropContentTags = map[string]bool{
	"script": true, "style": true, "iframe": true, "noscript": true,
	"textarea": true, "object": true, "embed": true, "title": true,
}

var allowedSchemes = map[string]bool{"http": true, "https": true, "mailto": true}

// Sanitize returns input with every tag and attribute outside the allow-list
// removed. Disallowed tags are dropped but keep their text content, except the
// dropContentTags whose content is removed entirely. Link and image URLs are
// limited to http, https and mailto (relative URLs pass). Sanitize is
// idempotent: applying it twice yields the same result as once.
func Sanitize(input string) string {
	z := html.NewTokenizer(strings.NewReader(input))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			if skip == 0 {
				b.WriteString(html.EscapeString(z.Token().Data))
			}
		case html.StartTagToken:
			tok := z.Token()
			if dropContentTags[tok.Data] {
				skip++
				continue
			}
			if skip > 0 || !allowedTags[tok.Data] {
				continue
			}
			writeTag(&b, tok, false)
		case html.SelfClosingTagToken:
			tok := z.Token()
			if skip > 0 || !allowedTags[tok.Data] {
				continue
			}
			writeTag(&b, tok, true)
		case html.EndTagToken:
			tok := z.Token()
			if dropContentTags[tok.Data] {
				if skip > 0 {
					skip--
				}
				continue
			}
			if skip > 0 || !allowedTags[tok.Data] {
				continue
			}
			b.WriteString("</")
			b.WriteString(tok.Data)
			b.WriteString(">")
		case html.CommentToken, html.DoctypeToken:
			// dropped
		}
	}
}

func writeTag(b *strings.Builder, tok html.Token, selfClosing bool) {
	b.WriteString("<")
	b.WriteString(tok.Data)
	for _, attr := range tok.Attr {
		if !attrAllowed(tok.Data, attr.Key, attr.Val) {
			continue
		}
		b.WriteString(" ")
		b.WriteString(attr.Key)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(attr.Val))
		b.WriteString(`"`)
	}
	if selfClosing {
		b.WriteString("/")
	}
	b.WriteString(">")
}

func attrAllowed(tag, key, val string) bool {
	key = strings.ToLower(key)
	if key == "style" {
		return !strings.Contains(strings.ToLower(val), "expression")
	}
	perTag := allowedAttrs[tag]
	if perTag == nil || !perTag[key] {
		return false
	}
	if key == "href" || key == "src" {
		return urlAllowed(val)
	}
	return true
}

func urlAllowed(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if u.Scheme == "" {
		return true
	}
	return allowedSchemes[strings.ToLower(u.Scheme)]
}

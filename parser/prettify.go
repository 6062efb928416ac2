package parser

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// preserved elements are rendered verbatim; reindenting them would change
// their content.
var preserved = map[string]bool{
	"script": true, "style": true, "pre": true, "textarea": true,
	"noscript": true, "iframe": true, "xmp": true, "plaintext": true,
}

// Prettify re-renders a page one node per line with two-space indentation.
// Cached pages are stored in this form.
func Prettify(raw []byte) ([]byte, error) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var buf bytes.Buffer
	if err := writeNode(&buf, doc, 0); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), nil
}

func writeNode(buf *bytes.Buffer, n *html.Node, depth int) error {
	indent := strings.Repeat("  ", depth)

	switch n.Type {
	case html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := writeNode(buf, c, depth); err != nil {
				return err
			}
		}
		return nil

	case html.TextNode:
		text := strings.TrimSpace(n.Data)
		if text == "" {
			return nil
		}
		buf.WriteString(indent)
		buf.WriteString(html.EscapeString(text))
		buf.WriteByte('\n')
		return nil

	case html.ElementNode:
		if preserved[n.Data] {
			buf.WriteString(indent)
			if err := html.Render(buf, n); err != nil {
				return err
			}
			buf.WriteByte('\n')
			return nil
		}

		buf.WriteString(indent)
		buf.WriteByte('<')
		buf.WriteString(n.Data)
		for _, attr := range n.Attr {
			buf.WriteByte(' ')
			if attr.Namespace != "" {
				buf.WriteString(attr.Namespace)
				buf.WriteByte(':')
			}
			buf.WriteString(attr.Key)
			buf.WriteString(`="`)
			buf.WriteString(html.EscapeString(attr.Val))
			buf.WriteByte('"')
		}
		buf.WriteString(">\n")
		if voidElements[n.Data] {
			return nil
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := writeNode(buf, c, depth+1); err != nil {
				return err
			}
		}
		buf.WriteString(indent)
		buf.WriteString("</")
		buf.WriteString(n.Data)
		buf.WriteString(">\n")
		return nil

	default:
		// doctype, comments
		buf.WriteString(indent)
		if err := html.Render(buf, n); err != nil {
			return err
		}
		buf.WriteByte('\n')
		return nil
	}
}

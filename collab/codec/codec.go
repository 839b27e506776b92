// Package codec translates between rich-text HTML, the durable snapshot
// representation of page content, and CRDT document state. Both directions
// are fallible; callers in the sync path log failures and degrade instead
// of propagating them into a live session.
package codec

import (
	"fmt"
	stdhtml "html"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"pagespace/collab/crdt"
)

// seedActor marks blocks that originate from a page snapshot rather than
// a collaborating client
const seedActor = "snapshot"

// ToDocumentUpdate converts rich-text HTML into a CRDT update that seeds a
// fresh document. Blank content yields (nil, nil): there is nothing to
// seed and an empty document is already correct.
func ToDocumentUpdate(richText string) ([]byte, error) {
	if strings.TrimSpace(richText) == "" {
		return nil, nil
	}

	root, err := html.Parse(strings.NewReader(richText))
	if err != nil {
		return nil, fmt.Errorf("parse rich text: %w", err)
	}

	body := findBody(root)
	if body == nil {
		return nil, fmt.Errorf("parse rich text: no body")
	}

	var blocks []crdt.Block
	appendBlock := func(kind crdt.Kind, text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		blocks = append(blocks, crdt.Block{
			ID:    uuid.New().String(),
			Pos:   fmt.Sprintf("a%06d", len(blocks)),
			Kind:  kind,
			Text:  text,
			Clock: 1,
			Actor: seedActor,
		})
	}

	for n := body.FirstChild; n != nil; n = n.NextSibling {
		switch {
		case n.Type == html.TextNode:
			appendBlock(crdt.KindParagraph, n.Data)
		case n.Type != html.ElementNode:
			// Comments and the like carry no content.
		case n.DataAtom == atom.P:
			appendBlock(crdt.KindParagraph, textContent(n))
		case n.DataAtom == atom.H1:
			appendBlock(crdt.KindHeading1, textContent(n))
		case n.DataAtom == atom.H2:
			appendBlock(crdt.KindHeading2, textContent(n))
		case n.DataAtom == atom.H3:
			appendBlock(crdt.KindHeading3, textContent(n))
		case n.DataAtom == atom.Ul:
			for li := n.FirstChild; li != nil; li = li.NextSibling {
				if li.Type == html.ElementNode && li.DataAtom == atom.Li {
					appendBlock(crdt.KindBullet, textContent(li))
				}
			}
		case n.DataAtom == atom.Ol:
			for li := n.FirstChild; li != nil; li = li.NextSibling {
				if li.Type == html.ElementNode && li.DataAtom == atom.Li {
					appendBlock(crdt.KindNumbered, textContent(li))
				}
			}
		case n.DataAtom == atom.Pre:
			appendBlock(crdt.KindCode, textContent(n))
		case n.DataAtom == atom.Blockquote:
			appendBlock(crdt.KindQuote, textContent(n))
		default:
			appendBlock(crdt.KindParagraph, textContent(n))
		}
	}

	if len(blocks) == 0 {
		return nil, nil
	}

	return crdt.EncodeUpdate(crdt.Update{Blocks: blocks})
}

// ToRichText renders the document's live blocks back into rich-text HTML.
// The output is semantically equivalent to the seeded input, not
// byte-identical: inline formatting inside blocks is not preserved.
func ToRichText(doc *crdt.Document) (string, error) {
	if doc == nil {
		return "", fmt.Errorf("nil document")
	}

	blocks := doc.Blocks()
	if len(blocks) == 0 {
		return "", nil
	}

	var sb strings.Builder
	var listKind crdt.Kind

	closeList := func() {
		switch listKind {
		case crdt.KindBullet:
			sb.WriteString("</ul>")
		case crdt.KindNumbered:
			sb.WriteString("</ol>")
		}
		listKind = ""
	}

	for _, b := range blocks {
		if b.Kind != listKind {
			closeList()
		}

		text := stdhtml.EscapeString(b.Text)
		switch b.Kind {
		case crdt.KindHeading1:
			sb.WriteString("<h1>" + text + "</h1>")
		case crdt.KindHeading2:
			sb.WriteString("<h2>" + text + "</h2>")
		case crdt.KindHeading3:
			sb.WriteString("<h3>" + text + "</h3>")
		case crdt.KindBullet:
			if listKind != crdt.KindBullet {
				sb.WriteString("<ul>")
				listKind = crdt.KindBullet
			}
			sb.WriteString("<li>" + text + "</li>")
		case crdt.KindNumbered:
			if listKind != crdt.KindNumbered {
				sb.WriteString("<ol>")
				listKind = crdt.KindNumbered
			}
			sb.WriteString("<li>" + text + "</li>")
		case crdt.KindCode:
			sb.WriteString("<pre><code>" + text + "</code></pre>")
		case crdt.KindQuote:
			sb.WriteString("<blockquote><p>" + text + "</p></blockquote>")
		default:
			sb.WriteString("<p>" + text + "</p>")
		}
	}
	closeList()

	return sb.String(), nil
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if body := findBody(c); body != nil {
			return body
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// Package goquerydoc implements manifest.DocumentParser on top of goquery.
package goquerydoc

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/JakeFAU/fetch-manifest/internal/manifest"
)

// Parser decodes HTML bodies to UTF-8 and builds queryable documents.
type Parser struct{}

// New returns a Parser.
func New() *Parser { return &Parser{} }

// Parse decodes body using the charset named by contentType or sniffed from
// the markup, then parses it.
func (p *Parser) Parse(body []byte, contentType string) (manifest.Document, error) {
	data := body
	if len(bytes.TrimSpace(body)) > 0 {
		enc, _, _ := charset.DetermineEncoding(body, contentType)
		decoded, err := enc.NewDecoder().Bytes(body)
		switch {
		case err == nil:
			data = decoded
		case !utf8.Valid(body):
			return nil, fmt.Errorf("decode document: %w", err)
		}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Document{doc: doc, empty: len(bytes.TrimSpace(data)) == 0}, nil
}

// Document adapts a goquery document to manifest.Document.
type Document struct {
	doc   *goquery.Document
	empty bool
}

// Query returns matches in document order. An invalid selector matches
// nothing.
func (d *Document) Query(selector string) []manifest.Node {
	sel := d.doc.Find(selector)
	nodes := make([]manifest.Node, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, node{sel: s})
	})
	return nodes
}

// Empty reports whether the parsed body was blank.
func (d *Document) Empty() bool { return d.empty }

// HTML renders the document, or "" when it is empty or fails to render.
func (d *Document) HTML() string {
	if d.empty {
		return ""
	}
	out, err := d.doc.Html()
	if err != nil {
		return ""
	}
	return out
}

type node struct {
	sel *goquery.Selection
}

func (n node) Attr(name string) (string, bool) { return n.sel.Attr(name) }

func (n node) Text() string { return n.sel.Text() }

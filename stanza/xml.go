// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"
	"io"

	"mellium.im/xmlstream"

	"github.com/corexmpp/xmpp/internal/ns"
)

// nodeReader adapts a Node into an xml.TokenReader (the same interface
// mellium.im/xmlstream calls xmlstream.TokenReader), so the rest of the
// library can compose it with xmlstream.Wrap/Insert/Copy exactly the way
// the teacher composes its own payloads in stanza.go and mux/iq.go,
// instead of hand-building XML strings.
type nodeReader struct {
	stack []frame
}

type frame struct {
	n     *Node
	state int // 0: emit start, 1: emit children/text, 2: emit end
	child int
}

// Reader returns an xml.TokenReader that streams n (and its descendants)
// as a well-formed sequence of tokens in document order.
func (n *Node) Reader() xml.TokenReader {
	return &nodeReader{stack: []frame{{n: n}}}
}

func (r *nodeReader) Token() (xml.Token, error) {
	for {
		if len(r.stack) == 0 {
			return nil, io.EOF
		}
		top := &r.stack[len(r.stack)-1]
		switch top.state {
		case 0:
			top.state = 1
			return startElement(top.n), nil
		case 1:
			if text := top.n.cachedText; text != "" && top.child == 0 {
				// Emit cached text before children, then fall through.
			}
			if top.child == 0 && top.n.cachedText != "" {
				top.child = -1
				return xml.CharData(top.n.cachedText), nil
			}
			if top.child == -1 {
				top.child = 0
			}
			if top.child < len(top.n.Children) {
				child := top.n.Children[top.child]
				top.child++
				if child.Name == "#text" {
					return xml.CharData(child.cachedText), nil
				}
				r.stack = append(r.stack, frame{n: child})
				continue
			}
			top.state = 2
			continue
		case 2:
			end := xml.EndElement{Name: xmlName(top.n)}
			r.stack = r.stack[:len(r.stack)-1]
			return end, nil
		}
	}
}

func xmlName(n *Node) xml.Name {
	return xml.Name{Space: n.NS, Local: n.Name}
}

// startElement builds the wire attribute list for n, consulting
// ns.LookupPrefix so that attributes in a namespace with a registered
// prefix (xml:lang, and any vendor namespace registered via ns.SetPrefix)
// are emitted with that stable prefix rather than one encoding/xml would
// invent on the fly, per spec.md §3's "configurable registry" requirement.
func startElement(n *Node) xml.StartElement {
	attrs := make([]xml.Attr, 0, len(n.Attrs))
	var nsDecls []xml.Attr
	declared := map[string]bool{}
	for _, a := range n.Attrs {
		if a.NS == "" {
			attrs = append(attrs, xml.Attr{Name: xml.Name{Local: a.Name}, Value: a.Value})
			continue
		}
		if p, ok := ns.LookupPrefix(a.NS); ok {
			attrs = append(attrs, xml.Attr{Name: xml.Name{Local: p + ":" + a.Name}, Value: a.Value})
			if p != "xml" && !declared[p] {
				declared[p] = true
				nsDecls = append(nsDecls, xml.Attr{Name: xml.Name{Local: "xmlns:" + p}, Value: a.NS})
			}
			continue
		}
		attrs = append(attrs, xml.Attr{Name: xml.Name{Space: a.NS, Local: a.Name}, Value: a.Value})
	}
	attrs = append(attrs, nsDecls...)
	return xml.StartElement{Name: xmlName(n), Attr: attrs}
}

// WriteTo serializes n to w using the xmlstream copy idiom, matching the
// teacher's reliance on mellium.im/xmlstream for stanza output.
func WriteTo(w io.Writer, n *Node) (int, error) {
	enc := xml.NewEncoder(w)
	count, err := xmlstream.Copy(enc, n.Reader())
	if err != nil {
		return count, err
	}
	return count, enc.Flush()
}

// Parse decodes a single element (already positioned at start) from d into
// a Node tree.
func Parse(d *xml.Decoder, start xml.StartElement) (*Node, error) {
	n := NewNode(start.Name.Local, start.Name.Space)
	for _, a := range start.Attr {
		space := a.Name.Space
		if space == "xml" {
			space = ns.XML
		}
		if space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		n.Attrs = append(n.Attrs, Attr{Name: a.Name.Local, NS: space, Value: a.Value})
	}
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := Parse(d, t)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
		case xml.CharData:
			n.cachedText += string(t)
		case xml.EndElement:
			return n, nil
		}
	}
}

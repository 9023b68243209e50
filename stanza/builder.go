// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

// Builder implements the declarative token-stream DSL of spec.md §4.1:
// open-child, open-child-ns, attr, attr-ns, set-content, close-child,
// capture-pointer. Unlike the original varargs/marker-character DSL (spec.md
// §9 notes that format is not portable), this rewrite uses an idiomatic Go
// fluent builder, matching the spirit of the teacher's functional-option
// idiom (StreamFeature, IQOption) applied to tree construction instead.
//
// All positional operations (Attr/AttrNS/Text) on a freshly opened child
// apply before any child-of-child is opened; Close returns to the parent,
// exactly as spec.md requires.
type Builder struct {
	stack []*Node
	root  *Node
}

// NewBuilder starts a builder whose root element is name in namespace ns.
func NewBuilder(name, ns string) *Builder {
	root := NewNode(name, ns)
	return &Builder{stack: []*Node{root}, root: root}
}

func (b *Builder) top() *Node {
	return b.stack[len(b.stack)-1]
}

// OpenChild opens a new unnamespaced child of the current node and
// descends into it.
func (b *Builder) OpenChild(name string) *Builder {
	return b.OpenChildNS(name, "")
}

// OpenChildNS opens a new namespaced child of the current node and
// descends into it.
func (b *Builder) OpenChildNS(name, ns string) *Builder {
	child := b.top().AddChild(NewNode(name, ns))
	b.stack = append(b.stack, child)
	return b
}

// Attr sets an unnamespaced attribute on the currently open node.
func (b *Builder) Attr(name, value string) *Builder {
	b.top().SetAttr(name, value)
	return b
}

// AttrNS sets a namespaced attribute on the currently open node.
func (b *Builder) AttrNS(name, ns, value string) *Builder {
	b.top().SetAttrNS(name, ns, value)
	return b
}

// Text sets the text content of the currently open node.
func (b *Builder) Text(text string) *Builder {
	b.top().SetText(text)
	return b
}

// Close returns focus to the parent of the currently open node. Closing the
// root is a no-op so callers may Close() defensively.
func (b *Builder) Close() *Builder {
	if len(b.stack) > 1 {
		b.stack = b.stack[:len(b.stack)-1]
	}
	return b
}

// Here returns the currently open node, for capture-pointer style use
// without breaking the fluent chain.
func (b *Builder) Here() *Node {
	return b.top()
}

// AssignTo stores the currently open node into *dst and returns the
// builder for chaining, implementing the "capture-pointer"/"assign-to"
// operations of spec.md §4.1.
func (b *Builder) AssignTo(dst **Node) *Builder {
	*dst = b.top()
	return b
}

// Node finishes the build and returns the root node.
func (b *Builder) Node() *Node {
	return b.root
}

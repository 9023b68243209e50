// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package form implements XEP-0004 Data Forms: parsing a `<x
// xmlns='jabber:x:data'>` element into a structured Form, filling in
// submission values, and building the `<x type='submit'>` reply.
//
// No form package source was retrieved among the examples (mellium.im/xmpp
// has one, referenced by muc.go as form.Data, but its source was not part
// of the pack), so this package follows the Node-based parse/build idiom
// established by the rest of this repository (stanza, auth) rather than
// adapting a specific teacher file.
package form

import (
	"errors"
	"fmt"

	"github.com/corexmpp/xmpp/internal/ns"
	"github.com/corexmpp/xmpp/stanza"
)

// Type is a data form's `type` attribute, per XEP-0004 §3.
type Type string

const (
	TypeForm   Type = "form"
	TypeSubmit Type = "submit"
	TypeResult Type = "result"
	TypeCancel Type = "cancel"
)

// FieldType is a field's `type` attribute, per XEP-0004 §3.2.
type FieldType string

const (
	FieldHidden      FieldType = "hidden"
	FieldFixed       FieldType = "fixed"
	FieldTextSingle  FieldType = "text-single"
	FieldTextPrivate FieldType = "text-private"
	FieldTextMulti   FieldType = "text-multi"
	FieldBoolean     FieldType = "boolean"
	FieldListSingle  FieldType = "list-single"
	FieldListMulti   FieldType = "list-multi"
	FieldJIDSingle   FieldType = "jid-single"
	FieldJIDMulti    FieldType = "jid-multi"
)

var validFieldTypes = map[FieldType]bool{
	FieldHidden: true, FieldFixed: true, FieldTextSingle: true,
	FieldTextPrivate: true, FieldTextMulti: true, FieldBoolean: true,
	FieldListSingle: true, FieldListMulti: true, FieldJIDSingle: true,
	FieldJIDMulti: true,
}

// singleValued reports whether t accepts at most one <value>.
func singleValued(t FieldType) bool {
	switch t {
	case FieldBoolean, FieldTextSingle, FieldTextPrivate, FieldListSingle, FieldJIDSingle, FieldHidden, FieldFixed:
		return true
	}
	return false
}

var (
	ErrWrongType          = errors.New("form: x element has an invalid type attribute")
	ErrIllFormedField     = errors.New("form: field has multiple values for a single-valued type")
	ErrFormTypeAlreadySet = errors.New("form: FORM_TYPE already set")
)

// Option is a `<option/>` within a list-single/list-multi field.
type Option struct {
	Label string
	Value string
}

// Field is a single `<field/>` element, per XEP-0004 §3.2.
type Field struct {
	Var      string
	Type     FieldType
	Label    string
	Desc     string
	Required bool
	Options  []Option
	Values   []string

	submitted bool
}

// SetValue sets fl's single value and marks it for submission.
func (fl *Field) SetValue(v string) {
	fl.Values = []string{v}
	fl.submitted = true
}

// SetValues sets fl's values and marks it for submission.
func (fl *Field) SetValues(vs []string) {
	fl.Values = append([]string(nil), vs...)
	fl.submitted = true
}

// SetBool sets a boolean field's value ("1" or "0") and marks it for
// submission.
func (fl *Field) SetBool(b bool) {
	if b {
		fl.SetValue("1")
		return
	}
	fl.SetValue("0")
}

// Bool interprets fl's first value as a XEP-0004 boolean ("1"/"true" is
// true, everything else is false).
func (fl *Field) Bool() bool {
	if len(fl.Values) == 0 {
		return false
	}
	return fl.Values[0] == "1" || fl.Values[0] == "true"
}

// Form is a parsed or constructed `<x xmlns='jabber:x:data'>` element.
type Form struct {
	Type         Type
	Title        string
	Instructions []string
	Fields       []*Field

	// Reported and Items are populated when Type is TypeResult and the
	// form describes tabular results (a <reported/> column list followed
	// by zero or more <item/> rows).
	Reported []*Field
	Items    [][]*Field

	formTypeSet bool
}

// New returns an empty submit-type form, for blind submission: see SetType
// and Field.
func New() *Form {
	return &Form{Type: TypeSubmit}
}

// SetType sets the form's FORM_TYPE hidden field for a blind submission
// (one built without first parsing a server-provided template). It may be
// called at most once.
func (f *Form) SetType(formType string) error {
	if f.formTypeSet {
		return ErrFormTypeAlreadySet
	}
	f.formTypeSet = true
	ft := f.FieldOrCreate("FORM_TYPE")
	ft.Type = FieldHidden
	ft.SetValue(formType)
	return nil
}

// FieldOrCreate returns the field named v, creating and appending a bare
// field with that var if none exists yet, per spec.md §4.6's
// create-if-missing requirement for blind submission.
func (f *Form) FieldOrCreate(v string) *Field {
	for _, fl := range f.Fields {
		if fl.Var == v {
			return fl
		}
	}
	fl := &Field{Var: v, Type: FieldTextSingle}
	f.Fields = append(f.Fields, fl)
	return fl
}

// Field returns the field named v, or nil if the form has no such field.
func (f *Form) Field(v string) *Field {
	for _, fl := range f.Fields {
		if fl.Var == v {
			return fl
		}
	}
	return nil
}

// Parse decodes x (a `<x xmlns='jabber:x:data'>` node) into a Form.
func Parse(x *stanza.Node) (*Form, error) {
	typeAttr, _ := x.Attr("type")
	t := Type(typeAttr)
	switch t {
	case TypeForm, TypeSubmit, TypeResult, TypeCancel:
	default:
		return nil, ErrWrongType
	}

	f := &Form{Type: t}
	if title := x.Child("title"); title != nil {
		f.Title = title.Text()
	}
	for _, instr := range x.ChildrenNS("instructions", ns.DataForm) {
		f.Instructions = append(f.Instructions, instr.Text())
	}

	if t == TypeResult {
		if reported := x.ChildNS("reported", ns.DataForm); reported != nil {
			for _, fn := range reported.ChildrenNS("field", ns.DataForm) {
				fl, err := parseField(fn)
				if err != nil {
					return nil, err
				}
				f.Reported = append(f.Reported, fl)
			}
		}
		items := x.ChildrenNS("item", ns.DataForm)
		if len(items) > 0 {
			for _, item := range items {
				var row []*Field
				for _, fn := range item.ChildrenNS("field", ns.DataForm) {
					fl, err := parseField(fn)
					if err != nil {
						return nil, err
					}
					row = append(row, fl)
				}
				f.Items = append(f.Items, row)
			}
			return f, nil
		}
	}

	for _, fn := range x.ChildrenNS("field", ns.DataForm) {
		fl, err := parseField(fn)
		if err != nil {
			return nil, err
		}
		f.Fields = append(f.Fields, fl)
	}
	return f, nil
}

func parseField(n *stanza.Node) (*Field, error) {
	v, _ := n.Attr("var")
	typeAttr, hasType := n.Attr("type")
	ft := FieldTextSingle
	if hasType {
		if !validFieldTypes[FieldType(typeAttr)] {
			return nil, fmt.Errorf("form: field %q has invalid type %q", v, typeAttr)
		}
		ft = FieldType(typeAttr)
	}
	fl := &Field{Var: v, Type: ft}
	fl.Label, _ = n.Attr("label")
	fl.Required = n.Child("required") != nil
	if desc := n.ChildNS("desc", ns.DataForm); desc != nil {
		fl.Desc = desc.Text()
	}
	for _, vn := range n.ChildrenNS("value", ns.DataForm) {
		fl.Values = append(fl.Values, vn.Text())
	}
	if singleValued(ft) && len(fl.Values) > 1 {
		return nil, ErrIllFormedField
	}
	// A parsed <value/> is both the field's default and its initially
	// submitted carrier, per spec.md §3: an unmodified round-trip through
	// Submit must reproduce it.
	if len(fl.Values) > 0 {
		fl.submitted = true
	}
	for _, on := range n.ChildrenNS("option", ns.DataForm) {
		label, _ := on.Attr("label")
		val := ""
		if vn := on.ChildNS("value", ns.DataForm); vn != nil {
			val = vn.Text()
		}
		fl.Options = append(fl.Options, Option{Label: label, Value: val})
	}
	return fl, nil
}

// Submit builds a `<x type='submit'>` node carrying one `<field>` per
// field that carried a `<value/>` when parsed or has had a value set via
// SetValue/SetValues/SetBool or SetType, per spec.md §4.6.
func (f *Form) Submit() *stanza.Node {
	x := stanza.NewNode("x", ns.DataForm)
	x.SetAttr("type", string(TypeSubmit))
	for _, fl := range f.Fields {
		if !fl.submitted {
			continue
		}
		fn := stanza.NewNode("field", ns.DataForm)
		fn.SetAttr("var", fl.Var)
		for _, v := range fl.Values {
			fn.AddChild(stanza.NewNode("value", ns.DataForm).SetText(v))
		}
		x.AddChild(fn)
	}
	return x
}

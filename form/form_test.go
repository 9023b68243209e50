// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package form

import (
	"errors"
	"testing"

	"github.com/corexmpp/xmpp/internal/ns"
	"github.com/corexmpp/xmpp/stanza"
)

func field(v, typ string, values ...string) *stanza.Node {
	fn := stanza.NewNode("field", ns.DataForm)
	fn.SetAttr("var", v)
	if typ != "" {
		fn.SetAttr("type", typ)
	}
	for _, val := range values {
		fn.AddChild(stanza.NewNode("value", ns.DataForm).SetText(val))
	}
	return fn
}

func TestParseFormTemplate(t *testing.T) {
	x := stanza.NewNode("x", ns.DataForm)
	x.SetAttr("type", "form")
	x.AddChild(stanza.NewNode("title", ns.DataForm).SetText("Bot Config"))
	x.AddChild(field("FORM_TYPE", "hidden", "jabber:bot"))
	botField := field("botname", "text-single")
	botField.SetAttr("label", "The bot's name")
	x.AddChild(botField)

	f, err := Parse(x)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Type != TypeForm {
		t.Fatalf("Type = %q, want form", f.Type)
	}
	if f.Title != "Bot Config" {
		t.Fatalf("Title = %q", f.Title)
	}
	if len(f.Fields) != 2 {
		t.Fatalf("len(Fields) = %d, want 2", len(f.Fields))
	}
	if f.Field("botname").Label != "The bot's name" {
		t.Fatalf("unexpected label: %q", f.Field("botname").Label)
	}
}

func TestParseWrongType(t *testing.T) {
	x := stanza.NewNode("x", ns.DataForm)
	x.SetAttr("type", "bogus")
	if _, err := Parse(x); !errors.Is(err, ErrWrongType) {
		t.Fatalf("expected ErrWrongType, got %v", err)
	}
}

func TestParseIllFormedField(t *testing.T) {
	x := stanza.NewNode("x", ns.DataForm)
	x.SetAttr("type", "form")
	x.AddChild(field("botname", "text-single", "a", "b"))
	if _, err := Parse(x); !errors.Is(err, ErrIllFormedField) {
		t.Fatalf("expected ErrIllFormedField, got %v", err)
	}
}

func TestParseResultWithItems(t *testing.T) {
	x := stanza.NewNode("x", ns.DataForm)
	x.SetAttr("type", "result")
	reported := stanza.NewNode("reported", ns.DataForm)
	reported.AddChild(field("name", "text-single"))
	reported.AddChild(field("jid", "jid-single"))
	x.AddChild(reported)

	item1 := stanza.NewNode("item", ns.DataForm)
	item1.AddChild(field("name", "", "Juliet"))
	item1.AddChild(field("jid", "", "juliet@example.com"))
	x.AddChild(item1)

	f, err := Parse(x)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(f.Reported) != 2 {
		t.Fatalf("len(Reported) = %d, want 2", len(f.Reported))
	}
	if len(f.Items) != 1 || len(f.Items[0]) != 2 {
		t.Fatalf("unexpected items: %+v", f.Items)
	}
	if f.Items[0][0].Values[0] != "Juliet" {
		t.Fatalf("unexpected item value: %+v", f.Items[0][0])
	}
}

// TestSubmitReproducesDefaultsUnmodified verifies spec.md §8's for-all
// invariant: parsing a template then submitting without modification
// yields a submit whose (var, values) match the template's defaults.
func TestSubmitReproducesDefaultsUnmodified(t *testing.T) {
	x := stanza.NewNode("x", ns.DataForm)
	x.SetAttr("type", "form")
	x.AddChild(field("FORM_TYPE", "hidden", "jabber:bot"))
	x.AddChild(field("botname", "text-single", "DefaultBot"))
	x.AddChild(field("answers", "list-multi"))

	f, err := Parse(x)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	sub := f.Submit()
	if sub.Name != "x" || sub.NS != ns.DataForm {
		t.Fatalf("unexpected submit root: %+v", sub)
	}
	typ, _ := sub.Attr("type")
	if typ != "submit" {
		t.Fatalf("type = %q, want submit", typ)
	}
	// FORM_TYPE and botname carried defaults; answers did not, and so is
	// not submitted.
	if len(sub.Children) != 2 {
		t.Fatalf("expected FORM_TYPE + botname submitted, got %d", len(sub.Children))
	}
	got := map[string]string{}
	for _, fn := range sub.Children {
		v, _ := fn.Attr("var")
		got[v] = fn.Children[0].Text()
	}
	if got["FORM_TYPE"] != "jabber:bot" {
		t.Fatalf("FORM_TYPE = %q, want jabber:bot", got["FORM_TYPE"])
	}
	if got["botname"] != "DefaultBot" {
		t.Fatalf("botname = %q, want DefaultBot", got["botname"])
	}
}

func TestSubmitIncludesModifiedAndDefaultFields(t *testing.T) {
	x := stanza.NewNode("x", ns.DataForm)
	x.SetAttr("type", "form")
	x.AddChild(field("FORM_TYPE", "hidden", "jabber:bot"))
	x.AddChild(field("botname", "text-single"))
	x.AddChild(field("answers", "list-multi"))

	f, err := Parse(x)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	f.Field("botname").SetValue("TestBot")

	sub := f.Submit()
	// FORM_TYPE carried a default, botname was explicitly set; answers had
	// neither and stays out of the submission.
	if len(sub.Children) != 2 {
		t.Fatalf("expected FORM_TYPE + botname submitted, got %d", len(sub.Children))
	}
	var sawBotname bool
	for _, fn := range sub.Children {
		if v, _ := fn.Attr("var"); v == "botname" {
			sawBotname = true
			if fn.Children[0].Text() != "TestBot" {
				t.Fatalf("botname value = %q, want TestBot", fn.Children[0].Text())
			}
		}
	}
	if !sawBotname {
		t.Fatalf("expected a submitted botname field, got %+v", sub.Children)
	}
}

func TestBlindSubmission(t *testing.T) {
	f := New()
	if err := f.SetType("jabber:bot"); err != nil {
		t.Fatalf("SetType: %v", err)
	}
	if err := f.SetType("jabber:bot"); !errors.Is(err, ErrFormTypeAlreadySet) {
		t.Fatalf("expected ErrFormTypeAlreadySet on second call, got %v", err)
	}

	f.FieldOrCreate("botname").SetValue("TestBot")
	f.FieldOrCreate("features").SetBool(true)

	sub := f.Submit()
	if len(sub.Children) != 3 {
		t.Fatalf("expected FORM_TYPE + 2 fields, got %d", len(sub.Children))
	}
}

func TestFieldBool(t *testing.T) {
	fl := &Field{Var: "x"}
	fl.SetBool(true)
	if !fl.Bool() {
		t.Fatal("expected true")
	}
	fl.SetBool(false)
	if fl.Bool() {
		t.Fatal("expected false")
	}
}

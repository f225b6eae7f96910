package serialize

import (
	"reflect"
	"strings"
	"testing"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func parseForm(t *testing.T, inner string) *xhtml.Node {
	t.Helper()
	ctx := &xhtml.Node{Type: xhtml.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := xhtml.ParseFragment(strings.NewReader("<form>"+inner+"</form>"), ctx)
	if err != nil {
		t.Fatalf("parsing form: %v", err)
	}
	for _, n := range nodes {
		if n.DataAtom == atom.Form {
			return n
		}
	}
	t.Fatal("no form element parsed")
	return nil
}

func TestFlat(t *testing.T) {
	tests := []struct {
		name string
		form string
		want map[string]string
	}{
		{
			name: "text inputs",
			form: `<input name="a" value="1"><input name="b" value="2">`,
			want: map[string]string{"a": "1", "b": "2"},
		},
		{
			name: "later field wins",
			form: `<input name="a" value="1"><input name="a" value="2">`,
			want: map[string]string{"a": "2"},
		},
		{
			name: "unnamed and disabled skipped",
			form: `<input value="x"><input name="off" value="y" disabled><input name="on" value="z">`,
			want: map[string]string{"on": "z"},
		},
		{
			name: "unchecked checkbox skipped",
			form: `<input type="checkbox" name="a" value="1"><input type="checkbox" name="b" value="2" checked>`,
			want: map[string]string{"b": "2"},
		},
		{
			name: "checked checkbox without value submits on",
			form: `<input type="checkbox" name="agree" checked>`,
			want: map[string]string{"agree": "on"},
		},
		{
			name: "radio group",
			form: `<input type="radio" name="c" value="x"><input type="radio" name="c" value="y" checked>`,
			want: map[string]string{"c": "y"},
		},
		{
			name: "buttons skipped",
			form: `<input type="submit" name="go" value="Go"><input name="q" value="term">`,
			want: map[string]string{"q": "term"},
		},
		{
			name: "select uses selected option",
			form: `<select name="s"><option value="a">A</option><option value="b" selected>B</option></select>`,
			want: map[string]string{"s": "b"},
		},
		{
			name: "select defaults to first option",
			form: `<select name="s"><option value="a">A</option><option value="b">B</option></select>`,
			want: map[string]string{"s": "a"},
		},
		{
			name: "option without value uses text",
			form: `<select name="s"><option selected>hello</option></select>`,
			want: map[string]string{"s": "hello"},
		},
		{
			name: "textarea uses text content",
			form: `<textarea name="msg">hi there</textarea>`,
			want: map[string]string{"msg": "hi there"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Flat(parseForm(t, tt.form))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Flat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValuesPreservesRepeats(t *testing.T) {
	form := parseForm(t, `<input name="tag" value="a"><input name="tag" value="b">`)
	got := Values(form)
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got["tag"], want) {
		t.Errorf("Values()[tag] = %v, want %v", got["tag"], want)
	}
}

func TestNested(t *testing.T) {
	tests := []struct {
		name    string
		form    string
		want    map[string]any
		wantErr bool
	}{
		{
			name: "plain names",
			form: `<input name="a" value="1">`,
			want: map[string]any{"a": "1"},
		},
		{
			name: "dot path",
			form: `<input name="user.name" value="amy"><input name="user.role" value="admin">`,
			want: map[string]any{"user": map[string]any{"name": "amy", "role": "admin"}},
		},
		{
			name: "bracket path",
			form: `<input name="a[b][c]" value="deep">`,
			want: map[string]any{"a": map[string]any{"b": map[string]any{"c": "deep"}}},
		},
		{
			name: "array index",
			form: `<input name="items[0]" value="x"><input name="items[1]" value="y">`,
			want: map[string]any{"items": []any{"x", "y"}},
		},
		{
			name: "array of objects",
			form: `<input name="rows[0].id" value="7">`,
			want: map[string]any{"rows": []any{map[string]any{"id": "7"}}},
		},
		{
			name:    "scalar then object collides",
			form:    `<input name="a" value="1"><input name="a.b" value="2">`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Nested(parseForm(t, tt.form))
			if tt.wantErr {
				if err == nil {
					t.Fatal("Nested() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Nested() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Nested() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDocument(t *testing.T) {
	form := parseForm(t, `<input name="a" value="1"><input name="b" value="<tag>">`)
	got := Document(form)
	want := `<fields><field name="a">1</field><field name="b">&lt;tag&gt;</field></fields>`
	if got != want {
		t.Errorf("Document() = %q, want %q", got, want)
	}
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		name string
		want []string
	}{
		{"a", []string{"a"}},
		{"a.b", []string{"a", "b"}},
		{"a[0]", []string{"a", "0"}},
		{"a.b[0][c]", []string{"a", "b", "0", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitPath(tt.name); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitPath(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

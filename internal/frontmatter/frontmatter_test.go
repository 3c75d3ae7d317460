package frontmatter

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantYAML string
		wantBody string
		wantOK   bool
	}{
		{"no block", "Hello world", "", "Hello world", false},
		{"block", "---\na: 1\n---\nbody\n", "a: 1\n", "body\n", true},
		{"empty block", "---\n---\nbody", "", "body", true},
		{"crlf", "---\r\na: 1\r\n---\r\nbody", "a: 1\r\n", "body", true},
		{"closing at eof", "---\na: 1\n---", "a: 1\n", "", true},
		{"unterminated", "---\na: 1\n", "", "---\na: 1\n", false},
		{"not at start", "\n---\na: 1\n---\n", "", "\n---\na: 1\n---\n", false},
		{"dashes inside value line", "---\na: ---x\n---\nb", "a: ---x\n", "b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y, body, ok := Split(tt.text)
			if ok != tt.wantOK || y != tt.wantYAML || body != tt.wantBody {
				t.Errorf("Split = (%q, %q, %v), want (%q, %q, %v)", y, body, ok, tt.wantYAML, tt.wantBody, tt.wantOK)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	got, err := Decode("---\ntitle: Note\ncount: 3\ntags: [a, b]\nempty:\n---\nbody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]any{"title": "Note", "count": 3, "tags": []any{"a", "b"}, "empty": nil}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}

	none, err := Decode("no front matter")
	if err != nil || none != nil {
		t.Errorf("no block: got (%v, %v), want (nil, nil)", none, err)
	}

	empty, err := Decode("---\n---\n")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("empty block: got (%v, %v), want empty map", empty, err)
	}
}

func TestDecode_ParseError(t *testing.T) {
	for _, text := range []string{
		"---\n: invalid: yaml: {{{\n---\nBody\n",
		"---\n- a\n- b\n---\n",
	} {
		_, err := Decode(text)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("Decode(%q): expected *ParseError, got %v", text, err)
		}
	}
}

func TestEncode_NewBlock(t *testing.T) {
	got, err := Encode("Hello world", map[string]any{"tags": []string{"a", "b"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "---\ntags: [a, b]\n---\n\nHello world"
	if got != want {
		t.Errorf("Encode = %q, want %q", got, want)
	}
}

func TestEncode_MergeKeepsOrderAndBody(t *testing.T) {
	text := "---\ntitle: Note\nstatus: todo\n---\n# Body\n\ntext\n"
	got, err := Encode(text, map[string]any{"status": "done", "due": nil, "area": "work"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "---\ntitle: Note\nstatus: done\narea: work\ndue:\n---\n# Body\n\ntext\n"
	if got != want {
		t.Errorf("Encode = %q, want %q", got, want)
	}
}

func TestEncode_KeepsComments(t *testing.T) {
	text := "---\n# managed by hand\ntitle: Note # inline\nstatus: todo\n---\nbody"
	got, err := Encode(text, map[string]any{"status": "done"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "# managed by hand") || !strings.Contains(got, "# inline") {
		t.Errorf("comments lost: %q", got)
	}
}

func TestEncode_EmptyValueToken(t *testing.T) {
	got, err := Encode("body", map[string]any{"due": nil}, WithEmptyValue("null"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "---\ndue: null\n---\n\nbody"; got != want {
		t.Errorf("Encode = %q, want %q", got, want)
	}

	if _, err := Encode("body", map[string]any{"due": nil}, WithEmptyValue("nil")); !errors.Is(err, ErrEmptyValue) {
		t.Errorf("expected ErrEmptyValue, got %v", err)
	}
}

func TestEncode_EmptyMergeRemovesBlock(t *testing.T) {
	got, err := Encode("---\n---\nbody\n", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "body\n" {
		t.Errorf("Encode = %q, want %q", got, "body\n")
	}

	got, err = Encode("plain text", map[string]any{})
	if err != nil || got != "plain text" {
		t.Errorf("no block, empty patch: got (%q, %v)", got, err)
	}
}

func TestEncode_MalformedBlockFails(t *testing.T) {
	text := "---\n: invalid: yaml: {{{\n---\nBody\n"
	out, err := Encode(text, map[string]any{"a": 1})
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if out != "" {
		t.Errorf("expected no output on error, got %q", out)
	}
}

func TestEncode_CommentOnlyBlock(t *testing.T) {
	got, err := Encode("---\n# only a comment\n---\nbody", map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "# only a comment") {
		t.Errorf("comment lost: %q", got)
	}
	if !strings.HasSuffix(got, "\n---\nbody") {
		t.Errorf("body changed: %q", got)
	}
	fm, err := Decode(got)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"a": 1}, fm); diff != "" {
		t.Errorf("front matter mismatch (-want +got):\n%s", diff)
	}
}

func TestRemove_InlinesAliasesOfRemovedValue(t *testing.T) {
	got, err := Remove("---\nbase: &b {x: 1}\nc: {<<: *b}\nd: *b\n---\nbody", "base")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fm, err := Decode(got)
	if err != nil {
		t.Fatalf("decode output %q: %v", got, err)
	}
	want := map[string]any{"c": map[string]any{"x": 1}, "d": map[string]any{"x": 1}}
	if diff := cmp.Diff(want, fm); diff != "" {
		t.Errorf("front matter mismatch (-want +got):\n%s\noutput: %q", diff, got)
	}
	if !strings.HasSuffix(got, "\n---\nbody") {
		t.Errorf("body changed: %q", got)
	}
}

func TestRename_InlinesAliasesOfReplacedKey(t *testing.T) {
	got, err := Rename("---\na: 1\nb: &v x\nc: *v\n---\n", "a", "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "---\nb: 1\nc: x\n---\n"; got != want {
		t.Errorf("Rename = %q, want %q", got, want)
	}
}

var roundTripCases = []struct {
	name  string
	text  string
	patch map[string]any
}{
	{"no block empty patch", "Hello world", map[string]any{}},
	{"no block", "Hello world", map[string]any{"tags": []any{"a", "b"}}},
	{"merge", "---\ntitle: Note\nstatus: todo\n---\nbody", map[string]any{"status": "done", "points": 3}},
	{"null value", "---\ntitle: Note\n---\nbody", map[string]any{"due": nil}},
	{"ambiguous string", "---\ntitle: Note\n---\n", map[string]any{"title": "a: b", "list": "- x"}},
	{"quoted looking values", "body", map[string]any{"flag": "true", "answer": "yes", "num": "42"}},
	{"crlf body", "---\r\na: 1\r\n---\r\nline one\r\nline two", map[string]any{"b": "two"}},
	{"nested", "---\nmeta:\n  owner: me\n---\n", map[string]any{"meta": map[string]any{"owner": "you"}}},
	{"anchored value replaced", "---\na: &x 1\nb: *x\n---\nbody", map[string]any{"a": 2}},
	{"merge source replaced", "---\nbase: &b {x: 1}\nc: {<<: *b}\n---\nbody", map[string]any{"base": 2}},
	{"anchor inside replaced mapping", "---\nmeta: {owner: &o me}\nlead: *o\n---\n", map[string]any{"meta": "none"}},
}

func TestEncode_RoundTrip(t *testing.T) {
	for _, tt := range roundTripCases {
		t.Run(tt.name, func(t *testing.T) {
			before, err := Decode(tt.text)
			if err != nil {
				t.Fatalf("decode input: %v", err)
			}
			want := map[string]any{}
			for k, v := range before {
				want[k] = v
			}
			for k, v := range tt.patch {
				want[k] = v
			}

			out, err := Encode(tt.text, tt.patch)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := Decode(out)
			if err != nil {
				t.Fatalf("decode output %q: %v", out, err)
			}
			if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s\noutput: %q", diff, out)
			}
		})
	}
}

func TestEncode_Idempotent(t *testing.T) {
	for _, tt := range roundTripCases {
		t.Run(tt.name, func(t *testing.T) {
			once, err := Encode(tt.text, tt.patch)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			twice, err := Encode(once, tt.patch)
			if err != nil {
				t.Fatalf("encode again: %v", err)
			}
			if once != twice {
				t.Errorf("not idempotent:\n once: %q\ntwice: %q", once, twice)
			}
		})
	}
}

func TestEncode_PreservesBody(t *testing.T) {
	for _, tt := range roundTripCases {
		t.Run(tt.name, func(t *testing.T) {
			_, body, _ := Split(tt.text)
			out, err := Encode(tt.text, tt.patch)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			_, outBody, _ := Split(out)
			if !strings.HasSuffix(outBody, body) {
				t.Errorf("body changed: got %q, want suffix %q", outBody, body)
			}
		})
	}
}

func TestStringifyYAML_Quoting(t *testing.T) {
	out, err := StringifyYAML(map[string]any{
		"plain":  "hello",
		"answer": "yes",
		"colon":  "a: b",
		"dash":   "- item",
		"flag":   "true",
		"number": "42",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	got := map[string]string{}
	for _, line := range lines {
		k, v, _ := strings.Cut(line, ": ")
		got[k] = v
	}

	if got["plain"] != "hello" || got["answer"] != "yes" {
		t.Errorf("expected unquoted plain values, got %q", out)
	}
	for _, k := range []string{"colon", "dash", "flag", "number"} {
		v := got[k]
		if !strings.HasPrefix(v, `"`) && !strings.HasPrefix(v, "'") {
			t.Errorf("%s = %s, want quoted", k, v)
		}
	}
}

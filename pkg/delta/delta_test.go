package delta_test

import (
	"encoding/json"
	"testing"

	"coauthor-backend/pkg/delta"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bold() delta.AttributeMap { return delta.AttributeMap{"bold": true} }

func TestPushMerges(t *testing.T) {
	tests := []struct {
		name string
		ops  []delta.Op
		want []delta.Op
	}{
		{
			name: "adjacent text inserts merge",
			ops:  []delta.Op{{Insert: "ab"}, {Insert: "c"}},
			want: []delta.Op{{Insert: "abc"}},
		},
		{
			name: "different attributes do not merge",
			ops:  []delta.Op{{Insert: "ab"}, {Insert: "c", Attributes: bold()}},
			want: []delta.Op{{Insert: "ab"}, {Insert: "c", Attributes: bold()}},
		},
		{
			name: "insert moves before delete",
			ops:  []delta.Op{{Delete: 1}, {Insert: "x"}},
			want: []delta.Op{{Insert: "x"}, {Delete: 1}},
		},
		{
			name: "deletes and retains merge",
			ops:  []delta.Op{{Retain: 2}, {Retain: 3}, {Delete: 1}, {Delete: 4}},
			want: []delta.Op{{Retain: 5}, {Delete: 5}},
		},
		{
			name: "embeds never merge",
			ops:  []delta.Op{{Embed: map[string]any{"image": "a.png"}}, {Embed: map[string]any{"image": "a.png"}}},
			want: []delta.Op{{Embed: map[string]any{"image": "a.png"}}, {Embed: map[string]any{"image": "a.png"}}},
		},
		{
			name: "zero length ops are skipped",
			ops:  []delta.Op{{Retain: 0}, {Insert: "a"}},
			want: []delta.Op{{Insert: "a"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := delta.New(tt.ops...)
			assert.Equal(t, tt.want, got.Ops)
		})
	}
}

func TestLengthCountsRunes(t *testing.T) {
	d := delta.New(delta.Op{Insert: "héllo 👋"}, delta.Op{Embed: map[string]any{"formula": "e=mc^2"}})
	assert.Equal(t, 8, d.Length())
}

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		content delta.Delta
		patch   delta.Delta
		want    delta.Delta
	}{
		{
			name:    "append text",
			content: delta.Text("hello"),
			patch:   delta.New(delta.Op{Retain: 5}, delta.Op{Insert: "!"}),
			want:    delta.Text("hello!"),
		},
		{
			name:    "delete middle",
			content: delta.Text("hello"),
			patch:   delta.New(delta.Op{Retain: 1}, delta.Op{Delete: 3}),
			want:    delta.Text("ho"),
		},
		{
			name:    "format a span",
			content: delta.Text("hello"),
			patch:   delta.New(delta.Op{Retain: 2}, delta.Op{Retain: 3, Attributes: bold()}),
			want:    delta.New(delta.Op{Insert: "he"}, delta.Op{Insert: "llo", Attributes: bold()}),
		},
		{
			name:    "remove an attribute",
			content: delta.New(delta.Op{Insert: "ab", Attributes: bold()}),
			patch:   delta.New(delta.Op{Retain: 2, Attributes: delta.AttributeMap{"bold": nil}}),
			want:    delta.Text("ab"),
		},
		{
			name:    "patch past the end is ignored",
			content: delta.Text("hello"),
			patch:   delta.New(delta.Op{Retain: 10}, delta.Op{Delete: 5}),
			want:    delta.Text("hello"),
		},
		{
			name:    "empty patch",
			content: delta.Text("hello"),
			patch:   delta.Delta{},
			want:    delta.Text("hello"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := delta.Apply(tt.content, tt.patch)
			assert.True(t, delta.Equal(tt.want, got), "got %+v", got.Ops)
		})
	}
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name string
		a, b delta.Delta
		want []delta.Op
	}{
		{
			name: "append",
			a:    delta.Text("hello"),
			b:    delta.Text("hello world"),
			want: []delta.Op{{Retain: 5}, {Insert: " world"}},
		},
		{
			name: "attribute change becomes formatted retain",
			a:    delta.Text("abc"),
			b:    delta.New(delta.Op{Insert: "abc", Attributes: bold()}),
			want: []delta.Op{{Retain: 3, Attributes: bold()}},
		},
		{
			name: "changed embed is replaced",
			a:    delta.New(delta.Op{Insert: "a"}, delta.Op{Embed: map[string]any{"image": "x.png"}}),
			b:    delta.New(delta.Op{Insert: "a"}, delta.Op{Embed: map[string]any{"image": "y.png"}}),
			want: []delta.Op{{Retain: 1}, {Embed: map[string]any{"image": "y.png"}}, {Delete: 1}},
		},
		{
			name: "identical content",
			a:    delta.Text("same"),
			b:    delta.Text("same"),
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := delta.Diff(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Ops)
		})
	}
}

func TestDiffRejectsNonDocuments(t *testing.T) {
	_, err := delta.Diff(delta.New(delta.Op{Retain: 1}), delta.Text("a"))
	assert.ErrorIs(t, err, delta.ErrNotDocument)
}

// Apply(c, Diff(c, c2)) must equal c2 for any pair of documents.
func TestDiffApplyRoundTrip(t *testing.T) {
	image := func(src string) delta.Op { return delta.Op{Embed: map[string]any{"image": src}} }

	contents := []delta.Delta{
		{},
		delta.Text("hello"),
		delta.Text("hello world"),
		delta.Text("héllo 👋 wörld"),
		delta.New(delta.Op{Insert: "hello ", Attributes: bold()}, delta.Op{Insert: "world"}),
		delta.New(delta.Op{Insert: "intro "}, image("fig1.png"), delta.Op{Insert: " outro"}),
		delta.New(delta.Op{Insert: "intro "}, image("fig2.png"), delta.Op{Insert: " outro\n"}),
		delta.New(image("a.png"), image("b.png")),
		delta.New(
			delta.Op{Insert: "Title", Attributes: delta.AttributeMap{"header": float64(1)}},
			delta.Op{Insert: "\nbody text with "},
			delta.Op{Insert: "link", Attributes: delta.AttributeMap{"link": "https://example.org"}},
		),
		delta.Text("completely different"),
	}

	for i, c := range contents {
		for j, c2 := range contents {
			patch, err := delta.Diff(c, c2)
			require.NoError(t, err)

			got := delta.Apply(c, patch)
			assert.True(t, delta.Equal(c2, got), "pair (%d,%d): got %+v want %+v", i, j, got.Ops, c2.Ops)
		}
	}
}

func TestJSON(t *testing.T) {
	raw := `{"ops":[{"insert":"hi","attributes":{"bold":true}},{"insert":{"image":"a.png"}},{"retain":3},{"delete":2}]}`

	var d delta.Delta
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	require.Len(t, d.Ops, 4)
	assert.Equal(t, "hi", d.Ops[0].Insert)
	assert.Equal(t, true, d.Ops[0].Attributes["bold"])
	assert.Equal(t, "a.png", d.Ops[1].Embed["image"])
	assert.Equal(t, 3, d.Ops[2].Retain)
	assert.Equal(t, 2, d.Ops[3].Delete)

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))

	empty, err := json.Marshal(delta.Delta{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ops":[]}`, string(empty))

	var bad delta.Delta
	assert.Error(t, json.Unmarshal([]byte(`{"ops":[{"retain":0}]}`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`{"ops":[{}]}`), &bad))
}

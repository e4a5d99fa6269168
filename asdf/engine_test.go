package asdf

import (
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dm "github.com/reoring/datamodels"
)

const pointTag = "asdf://test/tags/point-1.0.0"

type point struct {
	X, Y int
	Name string
}

type pointConverter struct {
	reads atomic.Int32
}

func (c *pointConverter) Tags() []string                        { return []string{pointTag} }
func (c *pointConverter) Types() []any                          { return []any{reflect.TypeOf(&point{})} }
func (c *pointConverter) SelectTag(v any, tags []string) string { return tags[0] }
func (c *pointConverter) Lazy() bool                            { return true }

func (c *pointConverter) ToTree(v any, tag string) (any, error) {
	p := v.(*point)
	return MapOf("x", p.X, "y", p.Y, "name", p.Name), nil
}

func (c *pointConverter) FromTree(tree any, tag string) (any, error) {
	c.reads.Add(1)
	m := tree.(*Map)
	x, _ := m.Get("x")
	y, _ := m.Get("y")
	name, _ := m.Get("name")
	return &point{X: x.(int), Y: y.(int), Name: name.(string)}, nil
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *pointConverter) {
	t.Helper()
	pc := &pointConverter{}
	e, err := NewEngine(append([]Option{WithConverters(pc)}, opts...)...)
	require.NoError(t, err)
	return e, pc
}

func TestEngine_RoundTrip(t *testing.T) {
	e, _ := newTestEngine(t)
	doc := MapOf(
		"title", "field",
		"origin", &point{X: 1, Y: 2, Name: "123"},
		"path", []any{&point{X: 3, Y: 4, Name: "a"}, 7, nil},
	)
	out, err := e.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(out), "!<"+pointTag+">")
	assert.Less(t, strings.Index(string(out), "title"), strings.Index(string(out), "origin"))

	back, err := e.Unmarshal(out)
	require.NoError(t, err)
	m, ok := back.(*Map)
	require.True(t, ok)
	assert.Equal(t, []string{"title", "origin", "path"}, m.Keys())
	origin, _ := m.Get("origin")
	assert.Equal(t, &point{X: 1, Y: 2, Name: "123"}, origin, "numeric-looking strings stay strings")
	path, _ := m.Get("path")
	assert.Equal(t, []any{&point{X: 3, Y: 4, Name: "a"}, 7, nil}, path)
}

func TestEngine_TaggedScalarKeepsQuotedString(t *testing.T) {
	tree, err := ReadTree(strings.NewReader(`a: !<asdf://test/tags/label-1.0.0> "42"` + "\n" + `b: !<asdf://test/tags/label-1.0.0> 42` + "\n"))
	require.NoError(t, err)
	m := tree.(*Map)
	a, _ := m.Get("a")
	b, _ := m.Get("b")
	assert.Equal(t, &Tagged{Tag: "asdf://test/tags/label-1.0.0", Value: "42"}, a)
	assert.Equal(t, &Tagged{Tag: "asdf://test/tags/label-1.0.0", Value: 42}, b)
}

func TestEngine_UnknownTag(t *testing.T) {
	e, _ := newTestEngine(t)
	v, err := e.Unmarshal([]byte("a: !<asdf://test/tags/mystery-1.0.0> {k: 1}\n"))
	assert.Nil(t, v)
	var ute *dm.UnresolvedTagError
	require.ErrorAs(t, err, &ute)
	assert.Equal(t, "asdf://test/tags/mystery-1.0.0", ute.Tag)

	_, err = e.Unmarshal([]byte("a: !!str plain\nb: !!int 3\n"))
	assert.NoError(t, err, "standard YAML tags are not custom tags")
}

func TestEngine_DuplicateKey(t *testing.T) {
	_, err := ReadTree(strings.NewReader("a: 1\nb: 2\na: 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate key "a"`)
}

func TestEngine_LazyTree(t *testing.T) {
	e, pc := newTestEngine(t, WithLazyTree(true))
	data := []byte("origin: !<" + pointTag + "> {x: 5, y: 6, name: p}\n")
	v, err := e.Unmarshal(data)
	require.NoError(t, err)
	origin, _ := v.(*Map).Get("origin")
	lz, ok := origin.(*Lazy)
	require.True(t, ok)
	assert.Equal(t, pointTag, lz.Tag())
	assert.False(t, lz.Resolved())
	assert.Equal(t, int32(0), pc.reads.Load())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := lz.Resolve()
			assert.NoError(t, err)
			assert.Equal(t, &point{X: 5, Y: 6, Name: "p"}, p)
		}()
	}
	wg.Wait()
	assert.True(t, lz.Resolved())
	assert.Equal(t, int32(1), pc.reads.Load())

	top, err := e.Unmarshal([]byte("!<" + pointTag + "> {x: 1, y: 1, name: top}\n"))
	require.NoError(t, err)
	assert.IsType(t, &point{}, top, "the document root is converted eagerly")
}

func TestEngine_UnresolvedLazyWritesOriginalTree(t *testing.T) {
	e, pc := newTestEngine(t, WithLazyTree(true))
	v, err := e.Unmarshal([]byte("origin: !<" + pointTag + "> {x: 5, y: 6, name: p}\n"))
	require.NoError(t, err)
	out, err := e.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(out), "!<"+pointTag+">")
	assert.Equal(t, int32(0), pc.reads.Load())
}

func TestEngine_ToJSON(t *testing.T) {
	e, _ := newTestEngine(t)
	out, err := e.ToJSON(MapOf("z", 1, "a", &point{X: 1, Y: 2, Name: "n"}))
	require.NoError(t, err)
	s := strings.Join(strings.Fields(string(out)), "")
	assert.Less(t, strings.Index(s, `"z"`), strings.Index(s, `"a"`))
	assert.Contains(t, s, `"$tag":"`+pointTag+`"`)
	assert.Contains(t, s, `"value":{"x":1,"y":2,"name":"n"}`)
}

func TestEngine_Errors(t *testing.T) {
	_, err := NewEngine(WithConverters(&pointConverter{}, &pointConverter{}))
	assert.Error(t, err)

	e, _ := newTestEngine(t)
	_, err = e.ToTree(struct{ A int }{1})
	assert.ErrorContains(t, err, "no converter")
}

func TestEngine_JSONRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t)
	doc := MapOf("z", 1, "a", &point{X: 1, Y: 2, Name: "n"}, "list", []any{1.5, "s", nil, true})
	out, err := e.ToJSON(doc)
	require.NoError(t, err)

	back, err := e.FromJSON(out)
	require.NoError(t, err)
	m := back.(*Map)
	assert.Equal(t, []string{"z", "a", "list"}, m.Keys())
	a, _ := m.Get("a")
	assert.Equal(t, &point{X: 1, Y: 2, Name: "n"}, a)
	list, _ := m.Get("list")
	assert.Equal(t, []any{1.5, "s", nil, true}, list)
}

func TestReadJSONTree_DuplicateKey(t *testing.T) {
	_, err := ReadJSONTree(strings.NewReader(`{"meta": {"a": 1, "a": 2}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate key "a" at meta`)
}

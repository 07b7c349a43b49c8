package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type node string

func (n node) Key() string { return string(n) }

type fixedSize struct{ w, h int }

func (f fixedSize) Size(node) (int, int) { return f.w, f.h }

func newModel(edges ...[2]node) *Model[node] {
	m := NewModel[node](DefaultOptions())
	for _, e := range edges {
		m.AddEdge(e[0], e[1])
	}
	return m
}

func columnsOf(m *Model[node]) [][]node {
	return m.PlanLayout()
}

func TestAddVertexIdempotent(t *testing.T) {
	m := newModel()
	assert.True(t, m.AddVertex("a"))
	assert.False(t, m.AddVertex("a"))
	assert.Equal(t, []node{"a"}, m.Vertices())
	assert.Equal(t, 1, m.Len())
}

func TestAddEdgeIdempotentAndAutoAdds(t *testing.T) {
	m := newModel()
	var changes []Change[node]
	unsubscribe := m.Subscribe(func(c Change[node]) { changes = append(changes, c) })
	defer unsubscribe()

	assert.True(t, m.AddEdge("p", "c"))
	assert.False(t, m.AddEdge("p", "c"))

	assert.Equal(t, []node{"p", "c"}, m.Vertices())
	assert.Equal(t, []Edge[node]{{Parent: "p", Child: "c"}}, m.Edges())
	assert.True(t, m.HasEdge("p", "c"))
	assert.False(t, m.HasEdge("c", "p"))
	assert.Equal(t, []node{"p"}, m.Parents("c"))
	assert.Equal(t, []node{"c"}, m.Children("p"))

	require.Len(t, changes, 3, "second AddEdge changed nothing")
	assert.Equal(t, VertexAdded, changes[0].Kind)
	assert.Equal(t, VertexAdded, changes[1].Kind)
	assert.Equal(t, Change[node]{Kind: EdgeAdded, Vertex: "c", Parent: "p"}, changes[2])
}

func TestUnsubscribe(t *testing.T) {
	m := newModel()
	calls := 0
	unsubscribe := m.Subscribe(func(Change[node]) { calls++ })

	m.AddVertex("a")
	unsubscribe()
	m.AddVertex("b")
	assert.Equal(t, 1, calls)
}

func TestRemoveVertexDropsEdges(t *testing.T) {
	m := newModel([2]node{"a", "b"}, [2]node{"b", "c"}, [2]node{"a", "c"})

	assert.True(t, m.RemoveVertex("b"))
	assert.False(t, m.RemoveVertex("b"))

	assert.Equal(t, []node{"a", "c"}, m.Vertices())
	assert.Equal(t, []Edge[node]{{Parent: "a", Child: "c"}}, m.Edges())
	assert.Empty(t, m.Children("b"))
	assert.Equal(t, []node{"c"}, m.Children("a"))
	assert.False(t, m.Contains("b"))
}

func TestClear(t *testing.T) {
	m := newModel([2]node{"a", "b"}, [2]node{"b", "b"})
	m.Render(fixedSize{10, 10})
	require.NotEmpty(t, m.Columns())

	notified := 0
	m.Subscribe(func(c Change[node]) {
		assert.Equal(t, Cleared, c.Kind)
		notified++
	})

	m.Clear()
	assert.Empty(t, m.Vertices())
	assert.Empty(t, m.Columns())
	assert.Empty(t, m.Edges())
	assert.Equal(t, -1, m.Column("a"))
	_, ok := m.Info("a")
	assert.False(t, ok)

	m.Clear()
	assert.Equal(t, 1, notified, "clearing an empty model is not a change")
}

func TestPlanLayoutLongestPath(t *testing.T) {
	m := newModel(
		[2]node{"User", "SessionID"},
		[2]node{"Password", "SessionID"},
		[2]node{"SessionID", "email"},
		[2]node{"SessionID", "SSN"},
		[2]node{"User", "SSN"},
		[2]node{"SessionID", "SessionID"},
	)

	assert.Equal(t, [][]node{
		{"User", "Password"},
		{"SessionID"},
		{"email", "SSN"},
	}, columnsOf(m))
	assert.Equal(t, 2, m.Column("SSN"), "deepest parent wins")
}

func TestPlanLayoutCycles(t *testing.T) {
	m := newModel(
		[2]node{"a", "b"},
		[2]node{"b", "c"},
		[2]node{"c", "a"},
		[2]node{"r", "a"},
	)

	assert.Equal(t, [][]node{{"b", "r"}, {"c"}, {"a"}}, columnsOf(m))

	for _, v := range m.Vertices() {
		col := m.Column(v)
		assert.GreaterOrEqual(t, col, 0)
		parents := m.Parents(v)
		if len(parents) == 0 {
			assert.Zero(t, col)
			continue
		}
		below := false
		for _, p := range parents {
			below = below || m.Column(p) < col
		}
		if v != "b" {
			assert.True(t, below, "%s should sit right of a parent", v)
		}
	}
}

func TestPlanLayoutTwoCycle(t *testing.T) {
	m := newModel([2]node{"x", "y"}, [2]node{"y", "x"})
	cols := columnsOf(m)
	require.Len(t, cols, 2)
	assert.Equal(t, [][]node{{"y"}, {"x"}}, cols)
}

func TestSelfLoopDoesNotShiftColumn(t *testing.T) {
	plain := newModel([2]node{"a", "b"})
	looped := newModel([2]node{"a", "b"}, [2]node{"b", "b"})

	columnsOf(plain)
	columnsOf(looped)
	assert.Equal(t, plain.Column("b"), looped.Column("b"))

	scene := looped.Render(fixedSize{40, 20})
	require.Len(t, scene.Arcs, 1)
	require.Len(t, scene.Connectors, 1)
	assert.Equal(t, node("a"), scene.Connectors[0].Parent, "no connector for the self-loop")

	info, ok := looped.Info("b")
	require.True(t, ok)
	assert.Equal(t, Arc[node]{
		Vertex: "b",
		X:      info.XLeft(),
		Y:      info.Center.Y - info.Height,
		Width:  40,
		Height: 20,
		Start:  0,
		Extent: 180,
	}, scene.Arcs[0])
}

func TestRenderGeometry(t *testing.T) {
	m := newModel([2]node{"a", "b"})
	scene := m.Render(fixedSize{40, 20})

	assert.Equal(t, []int{40, 40}, scene.ColumnWidths)
	assert.Equal(t, []int{40, 40}, scene.ColumnHeights)
	assert.Equal(t, 60, scene.Height)
	assert.Equal(t, 200, scene.Width)

	a, ok := m.Info("a")
	require.True(t, ok)
	assert.Equal(t, Point{50, 30}, a.Center)
	assert.Equal(t, 30, a.XLeft())
	assert.Equal(t, 70, a.XRight())
	assert.Equal(t, 20, a.YTop())
	assert.Equal(t, 40, a.YBottom())

	b, _ := m.Info("b")
	assert.Equal(t, Point{150, 30}, b.Center)
	assert.Equal(t, 1, b.Column)

	require.Len(t, scene.Connectors, 1)
	c := scene.Connectors[0]
	assert.Equal(t, Point{70, 30}, c.From)
	assert.Equal(t, Point{130, 30}, c.To)
	assert.Equal(t, [3]Point{{130, 30}, {118, 35}, {118, 25}}, c.Arrow)

	hit, ok := scene.VertexAt(50, 30)
	require.True(t, ok)
	assert.Equal(t, node("a"), hit)
	_, ok = scene.VertexAt(100, 30)
	assert.False(t, ok, "the gap between columns is empty")
	_, ok = scene.VertexAt(30, 30)
	assert.False(t, ok, "edges of the box do not count")
}

func TestRowSpacingFillsTallestColumn(t *testing.T) {
	m := newModel([2]node{"a", "c"}, [2]node{"b", "c"}, [2]node{"d", "c"})
	m.Render(fixedSize{10, 20})

	// column 0 holds three vertices: height 3*(20+20)+20 = 140, spacing 35
	for i, v := range []node{"a", "b", "d"} {
		vi, _ := m.Info(v)
		assert.Equal(t, 35*(i+1), vi.Center.Y, "vertex %s", v)
		assert.Equal(t, i, vi.Row)
	}
	c, _ := m.Info("c")
	assert.Equal(t, 70, c.Center.Y)
}

func TestRenderDeterministic(t *testing.T) {
	m := newModel([2]node{"a", "b"}, [2]node{"b", "a"}, [2]node{"a", "c"}, [2]node{"c", "c"})
	assert.Equal(t, m.Render(fixedSize{12, 8}), m.Render(fixedSize{12, 8}))
}

func TestArrowHead(t *testing.T) {
	tests := []struct {
		name     string
		from, to Point
		want     [3]Point
	}{
		{"rightwards", Point{0, 0}, Point{100, 0}, [3]Point{{100, 0}, {88, 5}, {88, -5}}},
		{"downwards", Point{0, 0}, Point{0, 100}, [3]Point{{0, 100}, {-5, 88}, {5, 88}}},
		{"degenerate", Point{7, 7}, Point{7, 7}, [3]Point{{7, 7}, {7, 7}, {7, 7}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ArrowHead(tt.from, tt.to, 12, 5))
		})
	}
}

package graph

import "math"

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// VertexInfo is a vertex's placement from the last render
type VertexInfo struct {
	Column int   `json:"column"`
	Row    int   `json:"row"`
	Center Point `json:"center"`
	Width  int   `json:"width"`
	Height int   `json:"height"`
}

func (vi VertexInfo) XLeft() int   { return vi.Center.X - vi.Width/2 }
func (vi VertexInfo) XRight() int  { return vi.Center.X + vi.Width/2 }
func (vi VertexInfo) YTop() int    { return vi.Center.Y - vi.Height/2 }
func (vi VertexInfo) YBottom() int { return vi.Center.Y + vi.Height/2 }

// Left is where incoming connectors end
func (vi VertexInfo) Left() Point { return Point{vi.XLeft(), vi.Center.Y} }

// Right is where outgoing connectors start
func (vi VertexInfo) Right() Point { return Point{vi.XRight(), vi.Center.Y} }

// Contains is a strict bounding box test
func (vi VertexInfo) Contains(x, y int) bool {
	return x > vi.XLeft() && x < vi.XRight() && y > vi.YTop() && y < vi.YBottom()
}

// Renderer measures vertices in whatever unit the caller draws in
type Renderer[T Vertex] interface {
	Size(v T) (width, height int)
}

type PlacedVertex[T Vertex] struct {
	Vertex T
	Info   VertexInfo
}

// Connector is a straight parent -> child line with a filled arrowhead at To
type Connector[T Vertex] struct {
	Parent T
	Child  T
	From   Point
	To     Point
	Arrow  [3]Point
}

// Arc is a self-loop drawn over the top of a vertex. Angles are in degrees.
type Arc[T Vertex] struct {
	Vertex T
	X      int
	Y      int
	Width  int
	Height int
	Start  int
	Extent int
}

type Scene[T Vertex] struct {
	ColumnWidths  []int
	ColumnHeights []int
	Width         int
	Height        int
	Vertices      []PlacedVertex[T]
	Connectors    []Connector[T]
	Arcs          []Arc[T]
}

// VertexAt returns the vertex whose box contains (x, y)
func (s *Scene[T]) VertexAt(x, y int) (T, bool) {
	for _, pv := range s.Vertices {
		if pv.Info.Contains(x, y) {
			return pv.Vertex, true
		}
	}
	var zero T
	return zero, false
}

const (
	unvisited = iota
	onPath
	leveled
)

// PlanLayout assigns every vertex a column: roots are column 0 and any other
// vertex sits one past its deepest parent. Edges that close a cycle on the
// current walk are skipped, as are self-loops, so every column is finite.
func (m *Model[T]) PlanLayout() [][]T {
	m.mu.Lock()
	m.planLocked()
	m.mu.Unlock()
	return m.Columns()
}

func (m *Model[T]) planLocked() {
	state := make(map[string]int, len(m.order))
	column := make(map[string]int, len(m.order))

	var level func(k string) int
	level = func(k string) int {
		state[k] = onPath
		c := 0
		for _, pk := range m.parents[k] {
			if pk == k {
				continue
			}
			switch state[pk] {
			case onPath:
				continue
			case leveled:
				c = max(c, column[pk]+1)
			default:
				c = max(c, level(pk)+1)
			}
		}
		state[k] = leveled
		column[k] = c
		return c
	}

	var columns [][]string
	for _, k := range m.order {
		if state[k] == unvisited {
			level(k)
		}
	}
	for _, k := range m.order {
		c := column[k]
		for len(columns) <= c {
			columns = append(columns, nil)
		}
		columns[c] = append(columns[c], k)
	}

	m.column = column
	m.columns = columns
}

// Render lays out the graph and computes geometry using r for vertex sizes.
// r must not call back into the model.
func (m *Model[T]) Render(r Renderer[T]) *Scene[T] {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.planLocked()
	opts := m.opts

	type size struct{ w, h int }
	sizes := make(map[string]size, len(m.order))
	scene := &Scene[T]{
		ColumnWidths:  make([]int, len(m.columns)),
		ColumnHeights: make([]int, len(m.columns)),
	}

	maxHeight := 0
	for c, col := range m.columns {
		for _, k := range col {
			w, h := r.Size(m.vertices[k])
			sizes[k] = size{w, h}
			scene.ColumnWidths[c] = max(scene.ColumnWidths[c], w)
			scene.ColumnHeights[c] += h + opts.RowGap
		}
		maxHeight = max(maxHeight, scene.ColumnHeights[c])
		scene.Width += scene.ColumnWidths[c] + opts.ColumnGap
	}
	scene.Height = maxHeight + opts.RowGap

	m.info = make(map[string]VertexInfo, len(m.order))
	xOffset := opts.ColumnGap / 2
	for c, col := range m.columns {
		rowSpacing := scene.Height / (len(col) + 1)
		xCenter := xOffset + scene.ColumnWidths[c]/2
		xOffset += scene.ColumnWidths[c] + opts.ColumnGap

		y := rowSpacing
		for row, k := range col {
			vi := VertexInfo{
				Column: c,
				Row:    row,
				Center: Point{xCenter, y},
				Width:  sizes[k].w,
				Height: sizes[k].h,
			}
			m.info[k] = vi
			scene.Vertices = append(scene.Vertices, PlacedVertex[T]{Vertex: m.vertices[k], Info: vi})
			y += rowSpacing
		}
	}

	for _, ck := range m.order {
		child := m.info[ck]
		for _, pk := range m.parents[ck] {
			if pk == ck {
				scene.Arcs = append(scene.Arcs, Arc[T]{
					Vertex: m.vertices[ck],
					X:      child.XLeft(),
					Y:      child.Center.Y - child.Height,
					Width:  child.Width,
					Height: opts.LoopHeight,
					Start:  0,
					Extent: 180,
				})
				continue
			}
			parent := m.info[pk]
			from, to := parent.Right(), child.Left()
			scene.Connectors = append(scene.Connectors, Connector[T]{
				Parent: m.vertices[pk],
				Child:  m.vertices[ck],
				From:   from,
				To:     to,
				Arrow:  ArrowHead(from, to, opts.ArrowLength, opts.ArrowHalfWidth),
			})
		}
	}
	return scene
}

// ArrowHead returns the tip and the two base corners of a triangle pointing
// at to along the from -> to direction
func ArrowHead(from, to Point, length, halfWidth int) [3]Point {
	dx, dy := float64(to.X-from.X), float64(to.Y-from.Y)
	d := math.Sqrt(dx*dx + dy*dy)
	if d == 0 {
		return [3]Point{to, to, to}
	}
	sin, cos := dy/d, dx/d
	along := d - float64(length)
	h := float64(halfWidth)

	corner := func(offset float64) Point {
		return Point{
			X: int(along*cos - offset*sin + float64(from.X)),
			Y: int(along*sin + offset*cos + float64(from.Y)),
		}
	}
	return [3]Point{to, corner(h), corner(-h)}
}

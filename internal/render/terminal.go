package render

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/graph"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/tracker"
)

var (
	boxStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("63"))

	secretBoxStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208")).
			Bold(true)

	edgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	loopStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("81"))
)

type cellKind uint8

const (
	cellBlank cellKind = iota
	cellEdge
	cellLoop
	cellBox
	cellSecretBox
)

// Terminal draws the graph as character cells. Use Options for the spacing so
// gaps are measured in cells rather than pixels.
type Terminal struct{}

func NewTerminal() *Terminal {
	return &Terminal{}
}

// Options is graph spacing suited to a character grid. A row gap of three
// keeps four-row boxes apart however many share a column.
func (t *Terminal) Options() graph.Options {
	return graph.Options{
		RowGap:         3,
		ColumnGap:      6,
		ArrowLength:    1,
		ArrowHalfWidth: 0,
		LoopHeight:     1,
	}
}

func (t *Terminal) box(v *tracker.TrackedParameter) []string {
	lines := Label(v)
	width := 0
	for _, l := range lines {
		width = max(width, lipgloss.Width(l))
	}
	for i := range lines {
		lines[i] = pad(lines[i], width)
	}
	// Unstyled so every rune maps to one cell; colour is applied per cell later
	plain := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	return strings.Split(plain.Render(strings.Join(lines, "\n")), "\n")
}

func (t *Terminal) Size(v *tracker.TrackedParameter) (int, int) {
	rows := t.box(v)
	width := 0
	for _, r := range rows {
		width = max(width, lipgloss.Width(r))
	}
	return width, len(rows)
}

// Draw rasterises a scene produced by Model.Render(t)
func (t *Terminal) Draw(scene *graph.Scene[*tracker.TrackedParameter]) string {
	if len(scene.Vertices) == 0 {
		return ""
	}
	c := newCanvas(scene.Width, scene.Height)

	for _, conn := range scene.Connectors {
		c.line(conn.From, conn.To)
		c.set(conn.Arrow[0].X-1, conn.Arrow[0].Y, '▶', cellEdge)
	}
	for _, arc := range scene.Arcs {
		y := arc.Y + arc.Height
		for x := arc.X; x < arc.X+arc.Width; x++ {
			c.set(x, y, '─', cellLoop)
		}
		c.set(arc.X, y, '╭', cellLoop)
		c.set(arc.X+arc.Width-1, y, '╮', cellLoop)
		c.set(arc.X+arc.Width/2, y, '↺', cellLoop)
	}
	for _, pv := range scene.Vertices {
		kind := cellBox
		if pv.Vertex.Param.IsSecret() {
			kind = cellSecretBox
		}
		for dy, row := range t.box(pv.Vertex) {
			x := pv.Info.XLeft()
			for _, r := range row {
				c.set(x, pv.Info.YTop()+dy, r, kind)
				x++
			}
		}
	}
	return c.String()
}

type canvas struct {
	width, height int
	runes         [][]rune
	kinds         [][]cellKind
}

func newCanvas(width, height int) *canvas {
	c := &canvas{width: width, height: height}
	c.runes = make([][]rune, height)
	c.kinds = make([][]cellKind, height)
	for y := range c.runes {
		c.runes[y] = []rune(strings.Repeat(" ", width))
		c.kinds[y] = make([]cellKind, width)
	}
	return c
}

func (c *canvas) set(x, y int, r rune, kind cellKind) {
	if x < 0 || y < 0 || x >= c.width || y >= c.height {
		return
	}
	c.runes[y][x] = r
	c.kinds[y][x] = kind
}

// line draws a straight connector with Bresenham's algorithm
func (c *canvas) line(from, to graph.Point) {
	dx, dy := abs(to.X-from.X), -abs(to.Y-from.Y)
	sx, sy := sign(to.X-from.X), sign(to.Y-from.Y)
	glyph := '─'
	if dy != 0 {
		glyph = '·'
	}
	x, y, e := from.X, from.Y, dx+dy
	for {
		c.set(x, y, glyph, cellEdge)
		if x == to.X && y == to.Y {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x += sx
		}
		if e2 <= dx {
			e += dx
			y += sy
		}
	}
}

func (c *canvas) String() string {
	styles := map[cellKind]lipgloss.Style{
		cellEdge:      edgeStyle,
		cellLoop:      loopStyle,
		cellBox:       boxStyle,
		cellSecretBox: secretBoxStyle,
	}

	var b strings.Builder
	for y := range c.runes {
		row := c.runes[y]
		kinds := c.kinds[y]
		end := len(row)
		for end > 0 && row[end-1] == ' ' {
			end--
		}
		for x := 0; x < end; {
			run := x
			for run < end && kinds[run] == kinds[x] {
				run++
			}
			text := string(row[x:run])
			if style, ok := styles[kinds[x]]; ok {
				text = style.Render(text)
			}
			b.WriteString(text)
			x = run
		}
		if y < len(c.runes)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	default:
		return 0
	}
}

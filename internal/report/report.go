// Package report converts analysis results into JSON views shared by the CLI
// export and the HTTP API.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/CodeMonkeyCybersecurity/paramflow/internal/analysis"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/correlation"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/graph"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/params"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/secrets"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/tracker"
)

type Instance struct {
	Message   int    `json:"message"`
	URL       string `json:"url,omitempty"`
	Direction string `json:"direction"`
	Name      string `json:"name"`
	Format    string `json:"format"`
	RawValue  string `json:"raw_value"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
}

type Param struct {
	ID           string                    `json:"id"`
	Name         string                    `json:"name"`
	Names        []string                  `json:"names"`
	Value        string                    `json:"value"`
	DecodedValue string                    `json:"decoded_value"`
	Location     string                    `json:"location"`
	Secret       bool                      `json:"secret"`
	Count        int                       `json:"count"`
	Analysis     correlation.ValueAnalysis `json:"analysis"`
	Instances    []Instance                `json:"instances,omitempty"`
}

type Secret struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Match string `json:"match"`
}

type Vertex struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Secret   bool     `json:"secret"`
	SelfLoop bool     `json:"self_loop"`
	Origins  []string `json:"origins"`
	Column   int      `json:"column"`
	Row      int      `json:"row"`
	X        int      `json:"x"`
	Y        int      `json:"y"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
}

type Connector struct {
	Parent string         `json:"parent"`
	Child  string         `json:"child"`
	From   graph.Point    `json:"from"`
	To     graph.Point    `json:"to"`
	Arrow  [3]graph.Point `json:"arrow"`
}

type Arc struct {
	Vertex string `json:"vertex"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Start  int    `json:"start"`
	Extent int    `json:"extent"`
}

type Graph struct {
	Width         int         `json:"width"`
	Height        int         `json:"height"`
	ColumnWidths  []int       `json:"column_widths"`
	ColumnHeights []int       `json:"column_heights"`
	Vertices      []Vertex    `json:"vertices"`
	Connectors    []Connector `json:"connectors"`
	Arcs          []Arc       `json:"arcs"`
}

type Report struct {
	RunID       string                    `json:"run_id"`
	GeneratedAt time.Time                 `json:"generated_at"`
	TrackMode   string                    `json:"track_mode"`
	Interrupted bool                      `json:"interrupted"`
	Error       string                    `json:"error,omitempty"`
	Messages    int                       `json:"messages"`
	Params      []Param                   `json:"params"`
	Cookies     []correlation.CookieStats `json:"cookies"`
	Secrets     []Secret                  `json:"secrets"`
	Diagnostics []string                  `json:"diagnostics,omitempty"`
	Graph       *Graph                    `json:"graph,omitempty"`
}

// NewParam builds the view of one parameter; instances are included on request
func NewParam(p *correlation.CorrelatedParam, showDecoded, withInstances bool) Param {
	view := Param{
		ID:           p.Fingerprint(),
		Name:         p.RepresentativeName,
		Names:        p.Names(),
		Value:        p.DisplayValue(showDecoded),
		DecodedValue: p.DecodedValue,
		Location:     p.Location.String(),
		Secret:       p.IsSecret(),
		Count:        p.InstanceCount(),
		Analysis:     correlation.AnalyzeValue(p.DecodedValue),
	}
	if withInstances {
		for _, inst := range p.Instances() {
			view.Instances = append(view.Instances, newInstance(inst))
		}
	}
	return view
}

func newInstance(inst *params.ParamInstance) Instance {
	out := Instance{
		Message:   inst.MessageIndex(),
		Direction: inst.Direction.String(),
		Name:      inst.Name,
		Format:    inst.Format.String(),
		RawValue:  inst.RawValue,
		Start:     inst.ValueStart,
		End:       inst.ValueEnd,
	}
	if inst.Message != nil {
		out.URL = inst.Message.URL
	}
	return out
}

func Params(ps []*correlation.CorrelatedParam, showDecoded, withInstances bool) []Param {
	out := make([]Param, 0, len(ps))
	for _, p := range ps {
		out = append(out, NewParam(p, showDecoded, withInstances))
	}
	return out
}

func Secrets(list []*secrets.Secret) []Secret {
	out := make([]Secret, 0, len(list))
	for _, s := range list {
		out = append(out, Secret{Name: s.Name, Kind: s.Kind.String(), Match: s.Match})
	}
	return out
}

// NewGraph flattens a rendered scene; vertices are identified by fingerprint
func NewGraph(scene *graph.Scene[*tracker.TrackedParameter]) *Graph {
	g := &Graph{
		Width:         scene.Width,
		Height:        scene.Height,
		ColumnWidths:  scene.ColumnWidths,
		ColumnHeights: scene.ColumnHeights,
		Vertices:      make([]Vertex, 0, len(scene.Vertices)),
		Connectors:    make([]Connector, 0, len(scene.Connectors)),
		Arcs:          make([]Arc, 0, len(scene.Arcs)),
	}
	for _, pv := range scene.Vertices {
		v := pv.Vertex
		origins := make([]string, 0)
		for _, o := range v.Origins() {
			origins = append(origins, o.ID())
		}
		g.Vertices = append(g.Vertices, Vertex{
			ID:       v.ID(),
			Name:     v.Param.RepresentativeName,
			Value:    v.Param.DecodedValue,
			Secret:   v.Param.IsSecret(),
			SelfLoop: v.HasSelfOrigin(),
			Origins:  origins,
			Column:   pv.Info.Column,
			Row:      pv.Info.Row,
			X:        pv.Info.Center.X,
			Y:        pv.Info.Center.Y,
			Width:    pv.Info.Width,
			Height:   pv.Info.Height,
		})
	}
	for _, c := range scene.Connectors {
		g.Connectors = append(g.Connectors, Connector{
			Parent: c.Parent.ID(),
			Child:  c.Child.ID(),
			From:   c.From,
			To:     c.To,
			Arrow:  c.Arrow,
		})
	}
	for _, a := range scene.Arcs {
		g.Arcs = append(g.Arcs, Arc{
			Vertex: a.Vertex.ID(),
			X:      a.X,
			Y:      a.Y,
			Width:  a.Width,
			Height: a.Height,
			Start:  a.Start,
			Extent: a.Extent,
		})
	}
	return g
}

// Build assembles a full report. The graph is laid out with r when the run
// produced one.
func Build(res *analysis.Result, r graph.Renderer[*tracker.TrackedParameter]) *Report {
	rep := &Report{
		RunID:       res.RunID,
		GeneratedAt: time.Now().UTC(),
		TrackMode:   res.TrackMode,
		Interrupted: res.Interrupted,
		Params:      []Param{},
		Cookies:     []correlation.CookieStats{},
		Secrets:     Secrets(res.Secrets),
	}
	if res.Err != nil {
		rep.Error = res.Err.Error()
	}
	if corr := res.Correlation; corr != nil {
		rep.Messages = corr.MessageCount()
		rep.Params = Params(corr.Params(), corr.ShowDecoded, true)
		rep.Cookies = corr.CookieStatistics()
		for _, d := range corr.Diagnostics() {
			rep.Diagnostics = append(rep.Diagnostics, d.Error())
		}
	}
	if res.Graph != nil && r != nil {
		rep.Graph = NewGraph(res.Graph.Render(r))
	}
	return rep
}

func Write(w io.Writer, rep *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteFile writes the report to path, replacing any existing file
func WriteFile(path string, rep *Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := Write(f, rep); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close report file: %w", err)
	}
	return nil
}

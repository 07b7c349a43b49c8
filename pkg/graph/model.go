// Package graph is a directed provenance graph with a left-to-right layered
// layout. Edges point from parent to child: the parent produced the child.
package graph

import (
	"sort"
	"sync"
)

// Vertex is anything with a logical identity. Two values with the same key
// are the same vertex.
type Vertex interface {
	Key() string
}

type Options struct {
	RowGap         int `mapstructure:"row_gap"`
	ColumnGap      int `mapstructure:"column_gap"`
	ArrowLength    int `mapstructure:"arrow_length"`
	ArrowHalfWidth int `mapstructure:"arrow_half_width"`
	LoopHeight     int `mapstructure:"loop_height"`
}

func DefaultOptions() Options {
	return Options{
		RowGap:         20,
		ColumnGap:      60,
		ArrowLength:    12,
		ArrowHalfWidth: 5,
		LoopHeight:     20,
	}
}

type Edge[T Vertex] struct {
	Parent T
	Child  T
}

type ChangeKind int

const (
	VertexAdded ChangeKind = iota
	VertexRemoved
	EdgeAdded
	Cleared
)

func (k ChangeKind) String() string {
	switch k {
	case VertexAdded:
		return "vertex_added"
	case VertexRemoved:
		return "vertex_removed"
	case EdgeAdded:
		return "edge_added"
	case Cleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Change describes one state change. Parent is only set for EdgeAdded.
type Change[T Vertex] struct {
	Kind   ChangeKind
	Vertex T
	Parent T
}

// Model stores vertices in insertion order and edges as child -> parents.
// Mutations are expected from a single goroutine; reads are safe alongside them.
type Model[T Vertex] struct {
	opts Options

	mu       sync.RWMutex
	order    []string
	vertices map[string]T
	parents  map[string][]string
	children map[string][]string
	column   map[string]int
	columns  [][]string
	info     map[string]VertexInfo

	subMu   sync.Mutex
	subs    map[int]func(Change[T])
	nextSub int
}

func NewModel[T Vertex](opts Options) *Model[T] {
	m := &Model[T]{
		opts: opts,
		subs: make(map[int]func(Change[T])),
	}
	m.reset()
	return m
}

func (m *Model[T]) reset() {
	m.order = nil
	m.vertices = make(map[string]T)
	m.parents = make(map[string][]string)
	m.children = make(map[string][]string)
	m.column = make(map[string]int)
	m.columns = nil
	m.info = make(map[string]VertexInfo)
}

func (m *Model[T]) Options() Options {
	return m.opts
}

// Subscribe registers fn for change notifications. fn runs on the mutating
// goroutine after the model lock is released.
func (m *Model[T]) Subscribe(fn func(Change[T])) (unsubscribe func()) {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

func (m *Model[T]) notify(changes []Change[T]) {
	if len(changes) == 0 {
		return
	}
	m.subMu.Lock()
	ids := make([]int, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Change[T]), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.subs[id])
	}
	m.subMu.Unlock()

	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}

// AddVertex reports whether v was new
func (m *Model[T]) AddVertex(v T) bool {
	m.mu.Lock()
	added := m.addVertexLocked(v)
	m.mu.Unlock()

	if added {
		m.notify([]Change[T]{{Kind: VertexAdded, Vertex: v}})
	}
	return added
}

func (m *Model[T]) addVertexLocked(v T) bool {
	k := v.Key()
	if _, ok := m.vertices[k]; ok {
		return false
	}
	m.vertices[k] = v
	m.order = append(m.order, k)
	return true
}

// AddEdge records parent -> child, adding either vertex if missing. It
// reports whether the edge was new.
func (m *Model[T]) AddEdge(parent, child T) bool {
	var changes []Change[T]

	m.mu.Lock()
	if m.addVertexLocked(parent) {
		changes = append(changes, Change[T]{Kind: VertexAdded, Vertex: parent})
	}
	if m.addVertexLocked(child) {
		changes = append(changes, Change[T]{Kind: VertexAdded, Vertex: child})
	}
	// Stored values win over duplicates passed in by key
	p, c := m.vertices[parent.Key()], m.vertices[child.Key()]
	added := m.addEdgeLocked(p.Key(), c.Key())
	if added {
		changes = append(changes, Change[T]{Kind: EdgeAdded, Vertex: c, Parent: p})
	}
	m.mu.Unlock()

	m.notify(changes)
	return added
}

func (m *Model[T]) addEdgeLocked(pk, ck string) bool {
	for _, existing := range m.parents[ck] {
		if existing == pk {
			return false
		}
	}
	m.parents[ck] = append(m.parents[ck], pk)
	m.children[pk] = append(m.children[pk], ck)
	return true
}

// RemoveVertex drops v and every edge touching it
func (m *Model[T]) RemoveVertex(v T) bool {
	k := v.Key()

	m.mu.Lock()
	stored, ok := m.vertices[k]
	if !ok {
		m.mu.Unlock()
		return false
	}

	for _, pk := range m.parents[k] {
		m.children[pk] = without(m.children[pk], k)
	}
	for _, ck := range m.children[k] {
		m.parents[ck] = without(m.parents[ck], k)
	}
	delete(m.parents, k)
	delete(m.children, k)
	delete(m.vertices, k)
	delete(m.column, k)
	delete(m.info, k)
	m.order = without(m.order, k)
	m.columns = nil
	m.mu.Unlock()

	m.notify([]Change[T]{{Kind: VertexRemoved, Vertex: stored}})
	return true
}

// Clear drops all vertices, edges and layout
func (m *Model[T]) Clear() {
	m.mu.Lock()
	changed := len(m.order) > 0 || len(m.columns) > 0
	m.reset()
	m.mu.Unlock()

	if changed {
		m.notify([]Change[T]{{Kind: Cleared}})
	}
}

// Vertices returns each vertex once, in insertion order
func (m *Model[T]) Vertices() []T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]T, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.vertices[k])
	}
	return out
}

func (m *Model[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

func (m *Model[T]) Contains(v T) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.vertices[v.Key()]
	return ok
}

func (m *Model[T]) Parents(v T) []T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookup(m.parents[v.Key()])
}

func (m *Model[T]) Children(v T) []T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookup(m.children[v.Key()])
}

func (m *Model[T]) HasEdge(parent, child T) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pk := parent.Key()
	for _, k := range m.parents[child.Key()] {
		if k == pk {
			return true
		}
	}
	return false
}

// Edges lists parent -> child pairs grouped by child in insertion order
func (m *Model[T]) Edges() []Edge[T] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Edge[T]
	for _, ck := range m.order {
		for _, pk := range m.parents[ck] {
			out = append(out, Edge[T]{Parent: m.vertices[pk], Child: m.vertices[ck]})
		}
	}
	return out
}

// Columns returns the buckets computed by the last PlanLayout or Render
func (m *Model[T]) Columns() [][]T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]T, len(m.columns))
	for i, col := range m.columns {
		out[i] = m.lookup(col)
	}
	return out
}

// Column is v's column from the last layout, or -1
func (m *Model[T]) Column(v T) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.column[v.Key()]; ok && m.columns != nil {
		return c
	}
	return -1
}

// Info is v's geometry from the last Render
func (m *Model[T]) Info(v T) (VertexInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vi, ok := m.info[v.Key()]
	return vi, ok
}

func (m *Model[T]) lookup(keys []string) []T {
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.vertices[k])
	}
	return out
}

func without(keys []string, k string) []string {
	out := keys[:0]
	for _, existing := range keys {
		if existing != k {
			out = append(out, existing)
		}
	}
	return out
}

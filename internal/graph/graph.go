// Package graph implements the component/port/connection graph runtime
// (spec §4.K): single-threaded cooperative scheduling over sink
// components, a shared interrupter, MIP version negotiation, and
// glob-based port auto-connect.
package graph

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"ssw-trace-core/internal/bretry"
	"ssw-trace-core/internal/bterr"
	"ssw-trace-core/internal/medium"
	"ssw-trace-core/internal/metrics"
	"ssw-trace-core/internal/value"
)

// Kind is a component's role in the graph.
type Kind int

const (
	KindSource Kind = iota
	KindFilter
	KindSink
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindFilter:
		return "filter"
	case KindSink:
		return "sink"
	default:
		return "unknown"
	}
}

// Direction is a port's data-flow direction.
type Direction int

const (
	DirIn Direction = iota
	DirOut
)

// Component is one node in the graph: a class name, a unique name within
// the graph, frozen init params, and the ports it has added so far.
type Component struct {
	Kind     Kind
	Class    string
	Name     string
	LogLevel string
	Params   *value.Value
	UserData any

	graph    *Graph
	inPorts  map[string]*Port
	outPorts map[string]*Port
}

// Port is one named, directed endpoint on a component.
type Port struct {
	Direction  Direction
	Owner      *Component
	Name       string
	Connection *Connection
}

// Connection links exactly one upstream Out port to one downstream In
// port. An Out port holds at most one Connection; an In port, when used,
// has exactly one.
type Connection struct {
	Upstream   *Port
	Downstream *Port
}

// AutoConnectRule matches a newly added Out port by `component/port`
// glob against a set of existing In ports, connecting the first match.
// Patterns use path/filepath.Match syntax (`*` wildcard, `\` escaping).
type AutoConnectRule struct {
	SourceGlob string
	SinkGlob   string
}

// Sink is the self-driving entity the scheduler rotates through; every
// sink component must supply one. Run mirrors §4.K's rotation contract:
// Ok (progress), Again (no progress, not an error), Eof (done).
type Sink interface {
	Run() (medium.Status, error)
}

// Initializer is satisfied by a Sink that needs its frozen init params
// before the first rotation, mirroring §4.K's `init(params)` lifecycle
// step. Optional: a Sink with no setup to do need not implement it.
type Initializer interface {
	Init(params *value.Value) error
}

// Finalizer is satisfied by a Sink that holds a resource (a medium
// handle, a producer connection) needing release on shutdown, mirroring
// §4.K's `finalize()` lifecycle step. Run calls Finalize on every sink
// that implements it on every exit path: Eof, error, or Interrupted.
type Finalizer interface {
	Finalize() error
}

// Interrupter is the shared cancellation flag. Graph.Run checks it before
// every scheduler rotation and around every back-off sleep; the query
// executor and the live session manager check it in their AGAIN retry
// loops. Media do not read it: the file medium never checks for
// interruption, and a live medium's Conn reads its own Client's flag.
type Interrupter struct {
	flag atomic.Bool
}

func (i *Interrupter) Set()          { i.flag.Store(true) }
func (i *Interrupter) Clear()        { i.flag.Store(false) }
func (i *Interrupter) IsSet() bool   { return i.flag.Load() }

// Graph owns every component, connection, and the sink rotation loop.
type Graph struct {
	components map[string]*Component
	sinks      map[string]Sink
	rules      []AutoConnectRule

	interrupter *Interrupter
	backoff     bretry.Backoff
}

// New builds an empty Graph. retryDuration <= 0 uses bretry's default.
func New(retryDuration time.Duration) *Graph {
	return &Graph{
		components:  make(map[string]*Component),
		sinks:       make(map[string]Sink),
		interrupter: &Interrupter{},
		backoff:     bretry.NewBackoff(retryDuration),
	}
}

func (g *Graph) Interrupter() *Interrupter { return g.interrupter }

// ComponentSnapshot is a read-only view of one component, for debug/
// introspection surfaces that must not reach into scheduler internals.
type ComponentSnapshot struct {
	Name     string
	Class    string
	Kind     Kind
	InPorts  []string
	OutPorts []string
}

// Snapshot returns a read-only view of every component currently in the
// graph, for the ambient debug HTTP surface.
func (g *Graph) Snapshot() []ComponentSnapshot {
	out := make([]ComponentSnapshot, 0, len(g.components))
	for _, c := range g.components {
		snap := ComponentSnapshot{Name: c.Name, Class: c.Class, Kind: c.Kind}
		for name := range c.inPorts {
			snap.InPorts = append(snap.InPorts, name)
		}
		for name := range c.outPorts {
			snap.OutPorts = append(snap.OutPorts, name)
		}
		out = append(out, snap)
	}
	return out
}

// AddComponent registers a new component. name must be unique in the
// graph. params is treated as already-frozen by the caller.
func (g *Graph) AddComponent(kind Kind, class, name string, params *value.Value) (*Component, error) {
	if _, exists := g.components[name]; exists {
		return nil, bterr.New(bterr.KindAlreadyExists, bterr.ActorComponent, "graph", "add_component",
			fmt.Sprintf("component %q already exists", name))
	}
	c := &Component{
		Kind:     kind,
		Class:    class,
		Name:     name,
		Params:   params,
		graph:    g,
		inPorts:  make(map[string]*Port),
		outPorts: make(map[string]*Port),
	}
	g.components[name] = c
	return c, nil
}

// SetSink associates the Sink implementation driving a Kind-Sink
// component's rotations. Must be called once per sink component before
// Run.
func (g *Graph) SetSink(name string, s Sink) error {
	c, ok := g.components[name]
	if !ok {
		return bterr.New(bterr.KindNotFound, bterr.ActorComponent, "graph", "set_sink",
			fmt.Sprintf("no such component %q", name))
	}
	if c.Kind != KindSink {
		return bterr.New(bterr.KindInvalidArgument, bterr.ActorComponent, "graph", "set_sink",
			fmt.Sprintf("component %q is not a sink", name))
	}
	g.sinks[name] = s
	return nil
}

// AddAutoConnectRule registers a glob pair consulted whenever a new Out
// port is added, per §4.K's port-added listener.
func (g *Graph) AddAutoConnectRule(sourceGlob, sinkGlob string) {
	g.rules = append(g.rules, AutoConnectRule{SourceGlob: sourceGlob, SinkGlob: sinkGlob})
}

// AddPort adds a named port to c. Adding an Out port runs auto-connect
// rules against every existing In port in the graph; the first
// unconnected match wins. A listener error aborts port addition.
func (c *Component) AddPort(dir Direction, name string) (*Port, error) {
	bucket := c.inPorts
	if dir == DirOut {
		bucket = c.outPorts
	}
	if _, exists := bucket[name]; exists {
		return nil, bterr.New(bterr.KindAlreadyExists, bterr.ActorComponent, "graph", "add_port",
			fmt.Sprintf("component %q already has a port named %q", c.Name, name))
	}
	p := &Port{Direction: dir, Owner: c, Name: name}
	bucket[name] = p

	if dir == DirOut {
		if err := c.graph.autoConnect(p); err != nil {
			delete(bucket, name)
			return nil, err
		}
	}
	return p, nil
}

func (g *Graph) autoConnect(out *Port) error {
	label := out.Owner.Name + "/" + out.Name
	for _, rule := range g.rules {
		matched, err := filepath.Match(rule.SourceGlob, label)
		if err != nil {
			return bterr.Wrap(err, bterr.KindInvalidArgument, bterr.ActorComponent, "graph", "auto_connect", "bad source glob")
		}
		if !matched {
			continue
		}
		for _, c := range g.components {
			for _, in := range c.inPorts {
				if in.Connection != nil {
					continue
				}
				inLabel := in.Owner.Name + "/" + in.Name
				sinkMatched, err := filepath.Match(rule.SinkGlob, inLabel)
				if err != nil {
					return bterr.Wrap(err, bterr.KindInvalidArgument, bterr.ActorComponent, "graph", "auto_connect", "bad sink glob")
				}
				if sinkMatched {
					return g.Connect(out, in)
				}
			}
		}
	}
	return nil
}

// Connect links up (Out) to down (In), enforcing §4.K's type and
// cardinality rules: source may feed filter or sink; filter may feed
// filter or sink; each Out port holds at most one connection, and an In
// port exactly one.
func (g *Graph) Connect(up, down *Port) error {
	if up.Direction != DirOut || down.Direction != DirIn {
		return bterr.New(bterr.KindInvalidArgument, bterr.ActorComponent, "graph", "connect", "wrong port directions")
	}
	if up.Owner.Kind == KindSink {
		return bterr.New(bterr.KindInvalidArgument, bterr.ActorComponent, "graph", "connect", "a sink has no output")
	}
	if down.Owner.Kind == KindSource {
		return bterr.New(bterr.KindInvalidArgument, bterr.ActorComponent, "graph", "connect", "a source has no input")
	}
	if up.Connection != nil {
		return bterr.New(bterr.KindInvalidState, bterr.ActorComponent, "graph", "connect", "output port already connected")
	}
	if down.Connection != nil {
		return bterr.New(bterr.KindInvalidState, bterr.ActorComponent, "graph", "connect", "input port already connected")
	}
	conn := &Connection{Upstream: up, Downstream: down}
	up.Connection = conn
	down.Connection = conn
	return nil
}

// NegotiateMIP picks the greatest version common to every component
// class's supported set, per §4.K. Empty intersection is a NoMatch error.
func NegotiateMIP(supported map[string][]uint) (uint, error) {
	if len(supported) == 0 {
		return 0, bterr.New(bterr.KindNoMatch, bterr.ActorComponentClass, "graph", "negotiate_mip", "no component classes to negotiate with")
	}
	var common map[uint]bool
	for _, versions := range supported {
		set := make(map[uint]bool, len(versions))
		for _, v := range versions {
			set[v] = true
		}
		if common == nil {
			common = set
			continue
		}
		for v := range common {
			if !set[v] {
				delete(common, v)
			}
		}
	}
	var best uint
	found := false
	for v := range common {
		if !found || v > best {
			best = v
			found = true
		}
	}
	if !found {
		return 0, bterr.New(bterr.KindNoMatch, bterr.ActorComponentClass, "graph", "negotiate_mip",
			"no MIP version is common to every component class")
	}
	return best, nil
}

// Run drives the scheduler: calls Init on every sink that implements
// Initializer, rotates through every sink not yet at Eof (sleeping the
// configured back-off whenever a full rotation made no progress), then
// calls Finalize on every sink that implements Finalizer regardless of
// how the rotation loop exited — Eof, error, or Interrupted — per §4.K's
// `init(params) → … → finalize()` component lifecycle. Returns nil once
// every sink reaches Eof, or the first sink error, or an Interrupted
// error if the interrupter was set mid-run; a Finalize error is returned
// only if the rotation loop itself did not already fail.
func (g *Graph) Run() error {
	if err := g.initSinks(); err != nil {
		return err
	}
	runErr := g.rotate()
	finalizeErr := g.finalizeSinks()
	if runErr != nil {
		return runErr
	}
	return finalizeErr
}

func (g *Graph) initSinks() error {
	for name, sink := range g.sinks {
		initer, ok := sink.(Initializer)
		if !ok {
			continue
		}
		if err := initer.Init(g.components[name].Params); err != nil {
			return bterr.Wrap(err, bterr.KindInvalidState, bterr.ActorComponent, "graph", "init",
				fmt.Sprintf("component %q failed to initialize", name))
		}
	}
	return nil
}

func (g *Graph) finalizeSinks() error {
	var firstErr error
	for name, sink := range g.sinks {
		finalizer, ok := sink.(Finalizer)
		if !ok {
			continue
		}
		if err := finalizer.Finalize(); err != nil && firstErr == nil {
			firstErr = bterr.Wrap(err, bterr.KindInvalidState, bterr.ActorComponent, "graph", "finalize",
				fmt.Sprintf("component %q failed to finalize", name))
		}
	}
	return firstErr
}

// rotate runs the scheduler loop proper, called by Run between the
// init and finalize lifecycle steps.
func (g *Graph) rotate() error {
	done := make(map[string]bool, len(g.sinks))
	for {
		if g.interrupter.IsSet() {
			return bterr.Interrupted(bterr.ActorComponent, "graph", "run")
		}

		start := time.Now()
		progressed := false
		active := false
		for name, sink := range g.sinks {
			if done[name] {
				continue
			}
			active = true
			status, err := sink.Run()
			switch status {
			case medium.StatusOk:
				progressed = true
			case medium.StatusAgain:
				metrics.AgainTotal.WithLabelValues(name).Inc()
			case medium.StatusEof:
				done[name] = true
				progressed = true
			case medium.StatusError:
				observeRotation(start, "error")
				return err
			}
		}
		if !active {
			observeRotation(start, "end")
			return nil
		}
		if progressed {
			observeRotation(start, "ok")
			continue
		}
		observeRotation(start, "again")

		if !g.backoff.Sleep(g.interrupter.IsSet) {
			return bterr.Interrupted(bterr.ActorComponent, "graph", "run")
		}
	}
}

func observeRotation(start time.Time, outcome string) {
	metrics.GraphRunDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

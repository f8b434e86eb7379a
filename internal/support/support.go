// Package support implements the two standard query objects §4.L
// names but leaves to a component class to define:
// "babeltrace.support-info" (score 0..1 for an input path) and
// "babeltrace.trace-infos" (per-stream time ranges). Scoring follows
// original_source's bt_support_info convention: extension and magic
// sniffing, never a full trace parse.
package support

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"ssw-trace-core/internal/bterr"
	"ssw-trace-core/internal/value"
)

// ctfMagic is the four-byte little-endian CTF packet magic number a
// well-formed stream file begins with (0xC1FC1FC1), when the stream
// class declares a packet header with a magic field. Its absence is
// not itself disqualifying — the CTF format allows headerless packets —
// so it only raises, never caps, the score.
var ctfMagic = []byte{0xc1, 0x1f, 0xfc, 0xc1}

// TraceInfo is one stream's reported time range, the "trace-infos"
// query object's per-stream element.
type TraceInfo struct {
	StreamClassID  uint64
	BeginNs        int64
	EndNs          int64
	IntersectsOnly bool
}

// Class implements internal/query.ComponentClass for the two standard
// discovery objects. It is not itself a source/filter/sink component;
// it answers queries issued before any component is instantiated, the
// same way the original implementation's support-info query runs
// ahead of `bt_plugin_find`-driven component selection.
type Class struct {
	infos func(path string) ([]TraceInfo, error)
}

// New builds a Class. infos supplies "babeltrace.trace-infos" answers;
// pass nil if the caller never issues that query (e.g. discovery-only
// use), in which case it returns Unsupported.
func New(infos func(path string) ([]TraceInfo, error)) *Class {
	return &Class{infos: infos}
}

// Query answers "babeltrace.support-info" (params must hold a string
// "path" key) and "babeltrace.trace-infos" (same).
func (c *Class) Query(objectName string, params *value.Value) (*value.Value, error) {
	switch objectName {
	case "babeltrace.support-info":
		return c.queryScore(params)
	case "babeltrace.trace-infos":
		return c.queryTraceInfos(params)
	default:
		return nil, bterr.New(bterr.KindNotFound, bterr.ActorComponentClass, "support", "query",
			"unknown query object "+objectName)
	}
}

func pathParam(params *value.Value) (string, error) {
	if params == nil || params.Kind() != value.KindMap {
		return "", bterr.New(bterr.KindInvalidArgument, bterr.ActorComponentClass, "support", "query", "params must be a map with a \"path\" key")
	}
	p, ok := params.Get("path")
	if !ok || p.Kind() != value.KindString {
		return "", bterr.New(bterr.KindInvalidArgument, bterr.ActorComponentClass, "support", "query", "params.path must be a string")
	}
	return p.AsString(), nil
}

// Score returns a confidence in [0,1] that path is a CTF trace this
// module can decode: a directory with a "metadata" file scores 1.0 if it
// also has an "index" subdirectory and 0.8 otherwise; a file starting
// with the CTF packet magic scores 0.7; a ".idx" file scores 0.6; any
// other ".ctf" file scores 0.3; anything else scores 0.
func Score(path string) float64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}

	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return 0
		}
		hasMetadata, hasIndexDir := false, false
		for _, e := range entries {
			switch {
			case e.Name() == "metadata":
				hasMetadata = true
			case e.Name() == "index" && e.IsDir():
				hasIndexDir = true
			}
		}
		switch {
		case hasMetadata && hasIndexDir:
			return 1.0
		case hasMetadata:
			return 0.8
		default:
			return 0
		}
	}

	if strings.HasSuffix(path, ".idx") {
		return 0.6
	}

	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	head := make([]byte, 4)
	if n, _ := f.Read(head); n == 4 && bytes.Equal(head, ctfMagic) {
		return 0.7
	}

	if ext := filepath.Ext(path); ext == ".ctf" {
		return 0.3
	}
	return 0
}

func (c *Class) queryScore(params *value.Value) (*value.Value, error) {
	path, err := pathParam(params)
	if err != nil {
		return nil, err
	}
	return value.F64(Score(path)), nil
}

func (c *Class) queryTraceInfos(params *value.Value) (*value.Value, error) {
	if c.infos == nil {
		return nil, bterr.New(bterr.KindUnsupported, bterr.ActorComponentClass, "support", "query", "trace-infos not wired for this class")
	}
	path, err := pathParam(params)
	if err != nil {
		return nil, err
	}
	infos, err := c.infos(path)
	if err != nil {
		return nil, err
	}
	out := value.Array()
	for _, ti := range infos {
		entry := value.Map()
		entry.Insert("stream_class_id", value.U64(ti.StreamClassID))
		entry.Insert("begin_ns", value.S64(ti.BeginNs))
		entry.Insert("end_ns", value.S64(ti.EndNs))
		entry.Insert("intersects_only", value.Bool(ti.IntersectsOnly))
		out.Append(entry)
	}
	out.Freeze()
	return out, nil
}

package egraph

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// document is the on-disk shape shared by every serialized e-graph:
//
//	{
//	  "nodes": {
//	    "0.0": {"op": "x", "id": "0.0", "children": [1], "eclass": 0, "cost": 1},
//	    ...
//	  },
//	  "root_eclasses": [0],
//	  "class_data": {"0": {"type": "Expr"}}
//	}
//
// class_data is optional and kept verbatim. Node keys always use the legacy
// "class.node" form because JSON object keys must be strings.
type document struct {
	Nodes        json.RawMessage `json:"nodes"`
	RootEClasses []ClassID       `json:"root_eclasses"`
	ClassData    json.RawMessage `json:"class_data,omitempty"`
}

type nodeJSON struct {
	Op       string     `json:"op"`
	ID       *NodeID    `json:"id,omitempty"`
	Children []childRef `json:"children"`
	EClass   ClassID    `json:"eclass"`
	Cost     *float64   `json:"cost,omitempty"`
}

// childRef is a child reference. Older documents name a child by one of its
// nodes ("3.1"); only the class part is meaningful.
type childRef ClassID

func (c *childRef) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.Contains(s, ".") {
			id, err := ParseNodeID(s)
			if err != nil {
				return err
			}
			*c = childRef(id.Class)
			return nil
		}
	}
	var id ClassID
	if err := id.UnmarshalJSON(data); err != nil {
		return err
	}
	*c = childRef(id)
	return nil
}

// Load reads a serialized e-graph from path. Files ending in .zst or .gz are
// decompressed transparently.
func Load(path string) (*EGraph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeIO, Message: "cannot open e-graph", Path: path, Err: err}
	}
	defer f.Close()

	r, closeFn, err := decompressor(path, bufio.NewReader(f))
	if err != nil {
		return nil, &LoadError{Code: ErrCodeIO, Message: "cannot decompress e-graph", Path: path, Err: err}
	}
	defer closeFn()

	g, err := Read(r)
	if err != nil {
		if le, ok := err.(*LoadError); ok && le.Path == "" {
			le.Path = path
		}
		return nil, err
	}
	return g, nil
}

// Read decodes a serialized e-graph. Node order in the document is preserved.
func Read(r io.Reader) (*EGraph, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, &LoadError{Code: ErrCodeMalformed, Message: "invalid e-graph document", Err: err}
	}
	if len(doc.Nodes) == 0 {
		return nil, &LoadError{Code: ErrCodeMalformed, Message: "missing \"nodes\" object"}
	}

	b := NewBuilder()
	dec := json.NewDecoder(bytes.NewReader(doc.Nodes))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil, &LoadError{Code: ErrCodeMalformed, Message: "\"nodes\" must be an object keyed by node id", Err: err}
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, &LoadError{Code: ErrCodeMalformed, Message: "reading node key", Err: err}
		}
		key, _ := tok.(string)
		id, err := ParseNodeID(key)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeMalformed, Message: "bad node key", Err: err}
		}

		var nj nodeJSON
		if err := dec.Decode(&nj); err != nil {
			return nil, &LoadError{Code: ErrCodeMalformed, Message: fmt.Sprintf("node %s", key), Err: err}
		}
		if nj.ID != nil && *nj.ID != id {
			return nil, &LoadError{
				Code:    ErrCodeMalformed,
				Message: fmt.Sprintf("node key %s does not match its id %s", key, nj.ID),
			}
		}

		n := Node{
			Op:       nj.Op,
			ID:       id,
			Children: make([]ClassID, len(nj.Children)),
			EClass:   nj.EClass,
			Cost:     DefaultCost,
		}
		for i, c := range nj.Children {
			n.Children[i] = ClassID(c)
		}
		if nj.Cost != nil {
			n.Cost = *nj.Cost
		}
		if err := b.Add(n); err != nil {
			return nil, err
		}
	}

	for _, r := range doc.RootEClasses {
		b.AddRoot(r)
	}
	b.SetClassData(doc.ClassData)
	return b.Build()
}

// Save writes g to path in the legacy layout, compressing by extension.
func Save(path string, g *EGraph) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return &LoadError{Code: ErrCodeIO, Message: "cannot create file", Path: path, Err: err}
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	w, closeFn, err := compressor(path, f)
	if err != nil {
		return &LoadError{Code: ErrCodeIO, Message: "cannot compress e-graph", Path: path, Err: err}
	}
	if err := Write(w, g); err != nil {
		closeFn()
		return err
	}
	return closeFn()
}

// Write encodes g in the legacy layout with nodes in graph order.
func Write(w io.Writer, g *EGraph) error {
	var buf bytes.Buffer
	buf.WriteString("{\n  \"nodes\": {")
	for i, n := range g.Nodes() {
		if i > 0 {
			buf.WriteByte(',')
		}
		children := make([]ClassID, len(n.Children))
		copy(children, n.Children)
		cost := n.Cost
		nj := struct {
			Op       string    `json:"op"`
			ID       string    `json:"id"`
			Children []ClassID `json:"children"`
			EClass   ClassID   `json:"eclass"`
			Cost     float64   `json:"cost"`
		}{n.Op, n.ID.String(), children, n.EClass, cost}

		body, err := json.MarshalIndent(nj, "    ", "  ")
		if err != nil {
			return fmt.Errorf("encoding node %s: %w", n.ID, err)
		}
		buf.WriteString("\n    ")
		buf.WriteString(strconv.Quote(n.ID.String()))
		buf.WriteString(": ")
		buf.Write(body)
	}
	buf.WriteString("\n  },\n  \"root_eclasses\": [")
	for i, r := range g.roots {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(r.String())
	}
	buf.WriteByte(']')
	if len(g.classData) > 0 {
		buf.WriteString(",\n  \"class_data\": ")
		if err := json.Indent(&buf, g.classData, "  ", "  "); err != nil {
			return fmt.Errorf("encoding class data: %w", err)
		}
	}
	buf.WriteString("\n}\n")

	_, err := w.Write(buf.Bytes())
	return err
}

func decompressor(path string, r io.Reader) (io.Reader, func(), error) {
	switch {
	case strings.HasSuffix(path, ".zst"):
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		return dec, dec.Close, nil
	case strings.HasSuffix(path, ".gz"):
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		return gr, func() { gr.Close() }, nil
	default:
		return r, func() {}, nil
	}
}

func compressor(path string, w io.Writer) (io.Writer, func() error, error) {
	switch {
	case strings.HasSuffix(path, ".zst"):
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		return enc, enc.Close, nil
	case strings.HasSuffix(path, ".gz"):
		gw := gzip.NewWriter(w)
		return gw, gw.Close, nil
	default:
		return w, func() error { return nil }, nil
	}
}

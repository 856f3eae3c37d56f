package extract

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/roach88/egx/internal/egraph"
)

// resultDocument is the JSON form of a result:
//
//	{"choices": {"0": "0.1", "3": "3.0"}}
type resultDocument struct {
	Choices map[string]egraph.NodeID `json:"choices"`
}

// WriteResult encodes r's choices as JSON.
func WriteResult(w io.Writer, r *Result) error {
	doc := resultDocument{Choices: make(map[string]egraph.NodeID, r.Len())}
	for _, c := range r.Choices() {
		doc.Choices[c.Class.String()] = c.Node
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// ReadResult decodes a result written by WriteResult.
func ReadResult(rd io.Reader) (*Result, error) {
	var doc resultDocument
	if err := json.NewDecoder(rd).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	r := NewResult()
	for key, nid := range doc.Choices {
		class, err := egraph.ParseClassID(key)
		if err != nil {
			return nil, fmt.Errorf("decoding result: %w", err)
		}
		r.Choose(class, nid)
	}
	return r, nil
}

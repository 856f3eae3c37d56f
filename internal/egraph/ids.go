package egraph

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ClassID identifies an e-class. Class ids are opaque ordinals; the only
// ordering that matters is the numeric one used for deterministic output.
type ClassID uint32

func (c ClassID) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

// ParseClassID parses a decimal class id.
func ParseClassID(s string) (ClassID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid class id %q: %w", s, err)
	}
	return ClassID(v), nil
}

// UnmarshalJSON accepts both a JSON number and a decimal string. Serialized
// e-graphs in the wild use either form for class ids.
func (c *ClassID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		id, err := ParseClassID(s)
		if err != nil {
			return err
		}
		*c = id
		return nil
	}
	var v uint32
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid class id %s: %w", string(data), err)
	}
	*c = ClassID(v)
	return nil
}

// NodeID identifies an e-node as the pair (class ordinal, node ordinal).
// The legacy textual form is "class.node".
type NodeID struct {
	Class uint32
	Index uint32
}

// NewNodeID builds a node id from its class and the node's ordinal within it.
func NewNodeID(class ClassID, index uint32) NodeID {
	return NodeID{Class: uint32(class), Index: index}
}

// String returns the legacy "a.b" form.
func (n NodeID) String() string {
	return strconv.FormatUint(uint64(n.Class), 10) + "." + strconv.FormatUint(uint64(n.Index), 10)
}

// Less orders node ids by class ordinal then node ordinal.
func (n NodeID) Less(o NodeID) bool {
	if n.Class != o.Class {
		return n.Class < o.Class
	}
	return n.Index < o.Index
}

// Compare returns -1, 0 or +1 for use with slices.SortFunc.
func (n NodeID) Compare(o NodeID) int {
	switch {
	case n.Less(o):
		return -1
	case o.Less(n):
		return 1
	default:
		return 0
	}
}

// ParseNodeID parses the legacy "a.b" form.
func ParseNodeID(s string) (NodeID, error) {
	a, b, ok := strings.Cut(s, ".")
	if !ok {
		return NodeID{}, fmt.Errorf("invalid node id %q: expected \"class.node\"", s)
	}
	class, err := strconv.ParseUint(a, 10, 32)
	if err != nil {
		return NodeID{}, fmt.Errorf("invalid node id %q: %w", s, err)
	}
	index, err := strconv.ParseUint(b, 10, 32)
	if err != nil {
		return NodeID{}, fmt.Errorf("invalid node id %q: %w", s, err)
	}
	return NodeID{Class: uint32(class), Index: uint32(index)}, nil
}

// MarshalText encodes the legacy form so node ids can be used as JSON
// object keys.
func (n NodeID) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText decodes the legacy form.
func (n *NodeID) UnmarshalText(text []byte) error {
	id, err := ParseNodeID(string(text))
	if err != nil {
		return err
	}
	*n = id
	return nil
}

// UnmarshalJSON accepts either the legacy "a.b" string or the structured
// [a, b] pair.
func (n *NodeID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		var pair []uint32
		if err := json.Unmarshal(data, &pair); err != nil {
			return fmt.Errorf("invalid node id %s: %w", string(data), err)
		}
		if len(pair) != 2 {
			return fmt.Errorf("invalid node id %s: expected two ordinals", string(data))
		}
		*n = NodeID{Class: pair[0], Index: pair[1]}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid node id %s: %w", string(data), err)
	}
	return n.UnmarshalText([]byte(s))
}

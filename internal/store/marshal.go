package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// marshalConfig converts a run's settings to JSON TEXT for storage. Map keys
// come out sorted, so equal settings store identical text.
func marshalConfig(config map[string]any) (string, error) {
	if len(config) == 0 {
		return "{}", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(config); err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalConfig parses JSON TEXT written by marshalConfig.
func unmarshalConfig(data string) (map[string]any, error) {
	if data == "" || data == "{}" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// nullCost stores an infinite or NaN cost as NULL.
func nullCost(c float64) sql.NullFloat64 {
	if math.IsInf(c, 0) || math.IsNaN(c) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: c, Valid: true}
}

// costOf inverts nullCost.
func costOf(n sql.NullFloat64) float64 {
	if !n.Valid {
		return math.Inf(1)
	}
	return n.Float64
}

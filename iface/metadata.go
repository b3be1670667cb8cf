package iface

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

// MetadataEntry is one key/value pair of image metadata.
type MetadataEntry struct {
	Key   string
	Value any
}

// Metadata is an ordered dictionary. It encodes as a JSON array of
// [key, value] pairs, which keeps insertion order across the module boundary.
type Metadata []MetadataEntry

// Get returns the value stored under key.
func (m Metadata) Get(key string) (any, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Set replaces the value under key or appends a new entry.
func (m *Metadata) Set(key string, value any) {
	for i := range *m {
		if (*m)[i].Key == key {
			(*m)[i].Value = value
			return
		}
	}
	*m = append(*m, MetadataEntry{Key: key, Value: value})
}

// Clone returns a deep copy of the entries. Maps and slices inside values
// are copied; other values are copied by assignment.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for i, e := range m {
		out[i] = MetadataEntry{Key: e.Key, Value: cloneValue(e.Value)}
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case []float64:
		return slices.Clone(v)
	case []int:
		return slices.Clone(v)
	case []string:
		return slices.Clone(v)
	case []byte:
		return bytes.Clone(v)
	case json.RawMessage:
		return bytes.Clone(v)
	}
	return v
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	pairs := make([][2]any, len(m))
	for i, e := range m {
		pairs[i] = [2]any{e.Key, e.Value}
	}
	return json.Marshal(pairs)
}

// UnmarshalJSON accepts the pair-array encoding and, for modules that emit
// one, a plain object whose keys are taken in sorted order.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = nil
		return nil
	}

	if data[0] == '{' {
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(Metadata, 0, len(keys))
		for _, k := range keys {
			out = append(out, MetadataEntry{Key: k, Value: obj[k]})
		}
		*m = out
		return nil
	}

	var pairs [][]json.RawMessage
	if err := json.Unmarshal(data, &pairs); err != nil {
		return err
	}
	out := make(Metadata, 0, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			return fmt.Errorf("metadata entry %d: expected [key, value], got %d elements", i, len(p))
		}
		var key string
		if err := json.Unmarshal(p[0], &key); err != nil {
			return fmt.Errorf("metadata entry %d key: %w", i, err)
		}
		var value any
		if err := json.Unmarshal(p[1], &value); err != nil {
			return fmt.Errorf("metadata entry %d value: %w", i, err)
		}
		out = append(out, MetadataEntry{Key: key, Value: value})
	}
	*m = out
	return nil
}

package factor

import "encoding/json"

// Meta carries provenance metadata for a factor. Reference is the citation
// the audit engine requires; any other keys the tenant attaches are kept in
// Extra so round-tripping through JSON loses nothing.
type Meta struct {
	Reference string
	Extra     map[string]any
}

// IsZero reports whether the metadata is empty.
func (m Meta) IsZero() bool {
	return m.Reference == "" && len(m.Extra) == 0
}

// MarshalJSON flattens Reference and Extra into one object.
func (m Meta) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+1)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.Reference != "" {
		out["reference"] = m.Reference
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the well-known reference key from the rest.
func (m *Meta) UnmarshalJSON(data []byte) error {
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if ref, ok := raw["reference"].(string); ok {
		m.Reference = ref
	}
	delete(raw, "reference")
	if len(raw) > 0 {
		m.Extra = raw
	} else {
		m.Extra = nil
	}
	return nil
}

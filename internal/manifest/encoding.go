package manifest

import (
	"bytes"
	"encoding/json"

	"sentinel/internal/jsonutil"
)

// MarshalIndent encodes the manifest as human-readable JSON without
// HTML-escaping patch content.
func MarshalIndent(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func jsonUnmarshal(raw []byte, v any) error {
	return jsonutil.UnmarshalFlex(raw, v)
}

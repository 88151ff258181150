package types

import (
	"encoding/base64"
	"unicode/utf8"
)

// maxThoughtText bounds how much reasoning text is kept per signature
// record in the manifest. The full transcript is stored separately.
const maxThoughtText = 500

// ThoughtSignature pairs a truncated reasoning excerpt with the opaque
// signature bytes the service attached to it, base64 encoded for storage.
type ThoughtSignature struct {
	ThoughtText string `json:"thought_text"`
	Signature   string `json:"thought_signature"`
}

// NewThoughtSignature encodes one reasoning part and its signature blob.
func NewThoughtSignature(text string, sig []byte) ThoughtSignature {
	if len(text) > maxThoughtText {
		// Back up to a rune boundary so the excerpt stays valid UTF-8.
		cut := maxThoughtText
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return ThoughtSignature{
		ThoughtText: text,
		Signature:   base64.StdEncoding.EncodeToString(sig),
	}
}

// DecodeSignature reverses the base64 encoding applied at capture time.
func (t ThoughtSignature) DecodeSignature() ([]byte, error) {
	return base64.StdEncoding.DecodeString(t.Signature)
}

// Transcript is the reasoning captured during the inference calls made
// for one unit or one finding. Owned by the run that produced it and
// never mutated after the call completes.
type Transcript struct {
	Unit       string             `json:"unit"`
	Text       string             `json:"text"`
	Signatures []ThoughtSignature `json:"signatures,omitempty"`
}

package crypto

import (
	"bytes"
	"encoding/json"
)

// CanonicalJSON serialises v with sorted object keys, no insignificant
// whitespace and no HTML escaping. Numbers keep their textual form when v
// was decoded with UseNumber.
func CanonicalJSON(v any) ([]byte, error) {
	// Round-trip through a generic value so struct field order cannot leak
	// into the output; encoding/json sorts map keys.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}
	return rawLineSeparators(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// rawLineSeparators turns the \u2028 and \u2029 escapes encoding/json always
// writes back into raw UTF-8, as canonical JSON requires.
func rawLineSeparators(b []byte) []byte {
	if !bytes.Contains(b, []byte(`\u202`)) {
		return b
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != '\\' || i+1 >= len(b) {
			out = append(out, b[i])
			continue
		}
		if i+5 < len(b) && b[i+1] == 'u' && b[i+2] == '2' && b[i+3] == '0' && b[i+4] == '2' {
			switch b[i+5] {
			case '8':
				out = append(out, "\u2028"...)
				i += 5
				continue
			case '9':
				out = append(out, "\u2029"...)
				i += 5
				continue
			}
		}
		// Any other escape is copied whole so an escaped backslash is never
		// mistaken for the start of a sequence.
		out = append(out, b[i], b[i+1])
		i++
	}
	return out
}

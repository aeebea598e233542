package formatter

import (
	"bytes"
	"encoding/json"
)

const standardIndentation = "    "

// ToStandardJSON returns the indented JSON representation of v.
func ToStandardJSON(v any) (string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", standardIndentation)
	err := encoder.Encode(v)
	return buffer.String(), err
}

package llamacpp

import (
	"fmt"
	"strings"

	parser "github.com/gpustack/gguf-parser-go"
)

const maxArraySize = 50

// Metadata is a summary of a GGUF file header.
type Metadata struct {
	Architecture string `json:"architecture"`
	Parameters   string `json:"parameters"`
	FileType     string `json:"file_type"`
	Size         string `json:"size"`
	// KV holds the scalar header entries and short arrays as strings.
	KV map[string]string `json:"metadata,omitempty"`
}

// Inspect parses the GGUF header at path.
func Inspect(path string) (Metadata, error) {
	gguf, err := parser.ParseGGUFFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("parse gguf %s: %w", path, err)
	}
	md := gguf.Metadata()
	return Metadata{
		Architecture: strings.TrimSpace(md.Architecture),
		Parameters:   strings.TrimSpace(md.Parameters.String()),
		FileType:     strings.TrimSpace(md.FileType.String()),
		Size:         strings.TrimSpace(md.Size.String()),
		KV:           headerKV(&gguf.Header),
	}, nil
}

func headerKV(header *parser.GGUFHeader) map[string]string {
	kv := make(map[string]string, len(header.MetadataKV))
	for _, entry := range header.MetadataKV {
		var value string
		switch entry.ValueType {
		case parser.GGUFMetadataValueTypeArray:
			arr := entry.ValueArray()
			if arr.Len > maxArraySize {
				continue
			}
			values := make([]string, 0, len(arr.Array))
			for _, v := range arr.Array {
				values = append(values, fmt.Sprint(v))
			}
			value = strings.Join(values, ", ")
		case parser.GGUFMetadataValueTypeString:
			value = entry.ValueString()
		case parser.GGUFMetadataValueTypeFloat32:
			value = fmt.Sprintf("%f", entry.ValueFloat32())
		case parser.GGUFMetadataValueTypeFloat64:
			value = fmt.Sprintf("%f", entry.ValueFloat64())
		default:
			value = fmt.Sprint(entry.Value)
		}
		kv[entry.Key] = value
	}
	return kv
}

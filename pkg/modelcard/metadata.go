// Package modelcard builds the description document published next to a
// converted model.
package modelcard

import "strings"

// Sentinel delimits the metadata block at the top of an upstream README.
const Sentinel = "---"

// Placeholder is substituted when no upstream metadata block is available.
const Placeholder = "---\ntags:\n- gguf\n---"

// ExtractMetadata returns the first Sentinel-delimited span of doc, both
// sentinel lines included, exactly as it appears in doc. A sentinel line may
// end in "\r". It returns false if doc has fewer than two sentinel lines.
func ExtractMetadata(doc string) (string, bool) {
	start := -1
	for offset := 0; offset < len(doc); {
		end := strings.IndexByte(doc[offset:], '\n')
		if end < 0 {
			end = len(doc)
		} else {
			end += offset
		}
		if strings.TrimSuffix(doc[offset:end], "\r") == Sentinel {
			if start >= 0 {
				return doc[start : offset+len(Sentinel)], true
			}
			start = offset
		}
		offset = end + 1
	}
	return "", false
}

// MetadataOrPlaceholder returns the metadata block of doc, or Placeholder.
func MetadataOrPlaceholder(doc string) string {
	if block, ok := ExtractMetadata(doc); ok {
		return block
	}
	return Placeholder
}

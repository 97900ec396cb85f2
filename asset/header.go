package asset

import "bytes"

// HeaderSize is the number of leading bytes GuessKind needs.
const HeaderSize = 5

var yamlMagic = []byte("%YAML")

// IsYAMLHeader checks if the content starts with the text serialization marker.
// Anything else (including short reads) is treated as binary serialization.
func IsYAMLHeader(data []byte) bool {
	return bytes.HasPrefix(data, yamlMagic)
}

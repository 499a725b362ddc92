package registry

import "bytes"

// bytesReader adapts a raw JSON Schema document to the io.Reader the
// jsonschema compiler's AddResource expects.
func bytesReader(raw []byte) *bytes.Reader {
	return bytes.NewReader(raw)
}

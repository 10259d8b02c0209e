// Package json wraps the JSON engine used across the gateway.
// All serialization goes through this package so the engine can be swapped
// without touching call sites.
package json

import "github.com/bytedance/sonic"

// Marshal serializes v to JSON.
func Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

// Unmarshal deserializes JSON data into v.
func Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

// MarshalIndent serializes v to indented JSON for human-facing output.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return sonic.ConfigDefault.MarshalIndent(v, prefix, indent)
}

// MarshalString serializes v and returns the JSON as a string.
func MarshalString(v any) (string, error) {
	return sonic.MarshalString(v)
}

var canonical = sonic.Config{SortMapKeys: true}.Froze()

// MarshalCanonical serializes v with sorted map keys so equal values always
// produce identical bytes. Used for fingerprinting.
func MarshalCanonical(v any) ([]byte, error) {
	return canonical.Marshal(v)
}

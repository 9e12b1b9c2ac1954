package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/spanos/internal/span"
)

// marshalBag converts a JSON object bag to canonical JSON text for storage.
func marshalBag(bag map[string]any) (string, error) {
	if len(bag) == 0 {
		return "{}", nil
	}
	data, err := span.MarshalCanonical(bag)
	if err != nil {
		return "", fmt.Errorf("marshal bag: %w", err)
	}
	return string(data), nil
}

// marshalList converts a related_to list to canonical JSON text.
func marshalList(list []string) (string, error) {
	if len(list) == 0 {
		return "[]", nil
	}
	data, err := span.MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("marshal list: %w", err)
	}
	return string(data), nil
}

// unmarshalBag parses JSON text to a bag. Numbers decode as json.Number so
// large integers round-trip without float64 precision loss and canonical
// re-hashing stays stable.
func unmarshalBag(data string) (map[string]any, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var bag map[string]any
	if err := dec.Decode(&bag); err != nil {
		return nil, fmt.Errorf("unmarshal bag: %w", err)
	}
	return bag, nil
}

// unmarshalList parses JSON text to a related_to list.
func unmarshalList(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return nil, fmt.Errorf("unmarshal list: %w", err)
	}
	return list, nil
}

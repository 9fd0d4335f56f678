package kv

import (
	"encoding/json"
	"fmt"
)

// encodeData serializes a secret's data map to the plaintext bytes that
// get envelope-encrypted. JSON keeps the stored format legible for
// export tooling while remaining a single opaque blob to the Store.
func encodeData(data map[string]any) ([]byte, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("kv: encoding secret data: %w", err)
	}
	return b, nil
}

func decodeData(plaintext []byte) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, fmt.Errorf("kv: decoding secret data: %w", err)
	}
	return data, nil
}

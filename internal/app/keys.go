package app

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// DecodeKey turns a configured key string into raw bytes. Hex is tried
// first because generated runtime defaults are hex, then the base64
// variants. A string that decodes as none of them is taken literally,
// which lets operators paste plain passphrases.
func DecodeKey(value string) ([]byte, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, fmt.Errorf("key value is empty")
	}

	if len(v)%2 == 0 {
		if raw, err := hex.DecodeString(v); err == nil {
			return raw, nil
		}
	}
	for _, encoding := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding} {
		if raw, err := encoding.DecodeString(v); err == nil {
			return raw, nil
		}
	}

	return []byte(v), nil
}

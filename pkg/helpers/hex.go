package helpers

import (
	"encoding/hex"
	"strings"
)

// AssetNameText decodes a hex asset name into printable text, falling back
// to the raw hex when the bytes are not printable ASCII.
func AssetNameText(hexName string) string {
	if hexName == "" {
		return ""
	}

	raw, err := hex.DecodeString(hexName)
	if err != nil {
		return hexName
	}

	for _, b := range raw {
		if b < 0x20 || b > 0x7e {
			return hexName
		}
	}
	return string(raw)
}

// ShortHex returns the first n characters of a hex string. Used for
// synthetic token names and log output.
func ShortHex(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ShortHash abbreviates a transaction hash or address for log output.
func ShortHash(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:8] + ".." + s[len(s)-4:]
}

// UpperHex returns the uppercased form of a hex string.
func UpperHex(s string) string {
	return strings.ToUpper(s)
}

package helpers

import (
	"math/big"
	"testing"
)

func TestParseBase(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"25000000", "25000000", false},
		{"0", "0", false},
		{"-28170000", "-28170000", false},
		{"123456789012345678901234567890", "123456789012345678901234567890", false},
		{"", "", true},
		{"12.5", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		got, err := ParseBase(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseBase(%q) expected error, got %v", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseBase(%q) error = %v", tt.input, err)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("ParseBase(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestParseBaseOrZero(t *testing.T) {
	if got := ParseBaseOrZero("garbage"); got.Sign() != 0 {
		t.Errorf("ParseBaseOrZero(garbage) = %s, want 0", got)
	}
	if got := ParseBaseOrZero("42"); got.Int64() != 42 {
		t.Errorf("ParseBaseOrZero(42) = %s, want 42", got)
	}
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		amount   string
		decimals uint8
		want     string
	}{
		{"25000000", 6, "25"},
		{"1830000", 6, "1.83"},
		{"-28170000", 6, "-28.17"},
		{"170000", 6, "0.17"},
		{"0", 6, "0"},
		{"4200000", 6, "4.2"},
		{"7", 0, "7"},
	}

	for _, tt := range tests {
		n, _ := new(big.Int).SetString(tt.amount, 10)
		if got := FormatUnits(n, tt.decimals); got != tt.want {
			t.Errorf("FormatUnits(%s, %d) = %s, want %s", tt.amount, tt.decimals, got, tt.want)
		}
	}

	if got := FormatUnits(nil, 6); got != "0" {
		t.Errorf("FormatUnits(nil) = %s, want 0", got)
	}
}

func TestAssetNameText(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"4d494e", "MIN"},          // "MIN"
		{"", ""},                   // empty asset name
		{"00ff", "00ff"},           // non-printable stays hex
		{"not-hex", "not-hex"},     // invalid hex stays as-is
		{"41474958", "AGIX"},       // "AGIX"
	}

	for _, tt := range tests {
		if got := AssetNameText(tt.input); got != tt.want {
			t.Errorf("AssetNameText(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestShortHash(t *testing.T) {
	hash := "8be33680ec04da1cc98868699c5462fbbf6975529fb6371d69bcecb147de65ab"
	got := ShortHash(hash)
	if got != "8be33680..65ab" {
		t.Errorf("ShortHash() = %q", got)
	}
	if ShortHash("abcd") != "abcd" {
		t.Error("ShortHash should pass short strings through")
	}
}

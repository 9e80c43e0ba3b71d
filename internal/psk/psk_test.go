package psk_test

import (
	"errors"
	"testing"

	"github.com/hopboxdev/meshbox/internal/psk"
)

func TestGenerate(t *testing.T) {
	k, err := psk.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !psk.Valid(k) {
		t.Errorf("generated key %q is not valid", k)
	}
	hex, err := psk.ToHex(k)
	if err != nil {
		t.Fatal(err)
	}
	if len(hex) != 64 {
		t.Errorf("hex length = %d, want 64", len(hex))
	}
}

func TestGenerateUnique(t *testing.T) {
	k1, _ := psk.Generate()
	k2, _ := psk.Generate()
	if k1 == k2 {
		t.Error("two generated keys are identical")
	}
}

func TestParseInvalid(t *testing.T) {
	for _, bad := range []string{"", "short", "!!!notbase64!!!", "c2hvcnQ="} {
		if _, err := psk.Parse(bad); !errors.Is(err, psk.ErrInvalidKey) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalidKey", bad, err)
		}
	}
}

func TestNormalize(t *testing.T) {
	k, _ := psk.Generate()
	got, err := psk.Normalize("  " + k + "\n")
	if err != nil {
		t.Fatal(err)
	}
	if got != k {
		t.Errorf("Normalize = %q, want %q", got, k)
	}
	if got, err := psk.Normalize(""); err != nil || got != "" {
		t.Errorf("Normalize(\"\") = %q, %v", got, err)
	}
}

func TestDisplay(t *testing.T) {
	if psk.Display("") != "" {
		t.Error("unset key displayed")
	}
	if psk.Display("anything") != psk.Redacted {
		t.Error("set key not redacted")
	}
}

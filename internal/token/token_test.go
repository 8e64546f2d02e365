package token

import (
	"errors"
	"testing"
	"time"

	"qrgate/internal/model"
	"qrgate/internal/registry"
)

func testRegistry() *registry.Registry {
	return registry.New(map[string]string{"ABC123": "42"})
}

func TestValidateValid(t *testing.T) {
	now := time.Unix(1000, 0)
	for _, raw := range []string{"ABC123|42|995", "abc123|42|970", "ABC123|42|1000"} {
		res := Validate(raw, now, testRegistry(), DefaultFreshness)
		if !res.Valid() {
			t.Fatalf("%s: expected valid, got %s", raw, res.Status)
		}
		if res.Plate != "ABC123" {
			t.Fatalf("%s: expected normalized plate, got %q", raw, res.Plate)
		}
		if res.Err() != nil {
			t.Fatalf("%s: valid result must not carry an error", raw)
		}
	}
}

func TestValidateExpired(t *testing.T) {
	now := time.Unix(1000, 0)
	res := Validate("ABC123|42|960", now, testRegistry(), DefaultFreshness)
	if res.Status != model.StatusExpired {
		t.Fatalf("expected expired, got %s", res.Status)
	}
	if !errors.Is(res.Err(), ErrExpired) {
		t.Fatalf("expected ErrExpired")
	}
	if res := Validate("ABC123|42|969", now, testRegistry(), DefaultFreshness); res.Status != model.StatusExpired {
		t.Fatalf("age 31 should expire, got %s", res.Status)
	}
	for _, raw := range []string{"ABC123|42|-9223372036854775808", "ABC123|42|-99999999999999999999"} {
		if res := Validate(raw, now, testRegistry(), DefaultFreshness); res.Status != model.StatusExpired {
			t.Fatalf("%q: ancient timestamp should expire, got %s", raw, res.Status)
		}
	}
}

func TestValidateAcceptsFutureTimestamp(t *testing.T) {
	now := time.Unix(1000, 0)
	for _, raw := range []string{"ABC123|42|5000", "ABC123|42|9223372036854775807", "ABC123|42|99999999999999999999"} {
		if res := Validate(raw, now, testRegistry(), DefaultFreshness); !res.Valid() {
			t.Fatalf("%q: future timestamps are accepted, got %s", raw, res.Status)
		}
	}
}

func TestValidateUnknownPlate(t *testing.T) {
	now := time.Unix(1000, 0)
	for _, raw := range []string{"XYZ789|42|995", "XYZ789|anything|995"} {
		res := Validate(raw, now, testRegistry(), DefaultFreshness)
		if res.Status != model.StatusUnknownPlate {
			t.Fatalf("%s: expected unknown plate, got %s", raw, res.Status)
		}
		if !errors.Is(res.Err(), ErrUnknownPlate) {
			t.Fatalf("expected ErrUnknownPlate")
		}
	}
	if res := Validate("ABC123|42|995", now, registry.New(nil), DefaultFreshness); res.Status != model.StatusUnknownPlate {
		t.Fatalf("empty registry: expected unknown plate, got %s", res.Status)
	}
}

func TestValidateCodeMismatch(t *testing.T) {
	now := time.Unix(1000, 0)
	res := Validate("ABC123|43|995", now, testRegistry(), DefaultFreshness)
	if res.Status != model.StatusCodeMismatch {
		t.Fatalf("expected code mismatch, got %s", res.Status)
	}
	if !errors.Is(res.Err(), ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch")
	}
}

func TestValidateMalformed(t *testing.T) {
	now := time.Unix(1000, 0)
	cases := []string{
		"",
		"ABC123",
		"ABC123|42",
		"ABC123|42|995|extra",
		"ABC123|42|soon",
		"ABC123|42|9.5",
		"|42|995",
		"ABC123||995",
		"ABC123|42|",
	}
	for _, raw := range cases {
		res := Validate(raw, now, testRegistry(), DefaultFreshness)
		if res.Status != model.StatusMalformed {
			t.Fatalf("%q: expected malformed, got %s", raw, res.Status)
		}
		if !errors.Is(res.Err(), ErrMalformed) {
			t.Fatalf("%q: expected ErrMalformed", raw)
		}
	}
}

func TestValidateExpiryCheckedBeforeRegistry(t *testing.T) {
	now := time.Unix(1000, 0)
	res := Validate("NOPE|0|1", now, testRegistry(), DefaultFreshness)
	if res.Status != model.StatusExpired {
		t.Fatalf("expected expired before unknown plate, got %s", res.Status)
	}
}

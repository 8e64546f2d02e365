// Package token validates PLATE|CODE|TIMESTAMP payloads read from QR symbols.
package token

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"qrgate/internal/model"
)

const DefaultFreshness int64 = 30

var (
	ErrMalformed    = errors.New("token malformed")
	ErrExpired      = errors.New("token expired")
	ErrUnknownPlate = errors.New("token plate unknown")
	ErrCodeMismatch = errors.New("token code mismatch")
)

// Lookup resolves a normalized plate to its secret code.
type Lookup interface {
	Lookup(plate string) (string, bool)
}

type Result struct {
	Status model.Status
	Plate  string
}

func (r Result) Valid() bool {
	return r.Status == model.StatusValid
}

// Err maps a failed result to its sentinel error, nil when valid.
func (r Result) Err() error {
	switch r.Status {
	case model.StatusValid:
		return nil
	case model.StatusExpired:
		return ErrExpired
	case model.StatusUnknownPlate:
		return ErrUnknownPlate
	case model.StatusCodeMismatch:
		return ErrCodeMismatch
	default:
		return ErrMalformed
	}
}

// Validate checks raw against the registry. Tokens stamped in the future are
// accepted; only age above freshness (seconds) expires a token.
func Validate(raw string, now time.Time, plates Lookup, freshness int64) Result {
	fields := strings.Split(raw, "|")
	if len(fields) != 3 {
		return Result{Status: model.StatusMalformed}
	}
	for _, f := range fields {
		if f == "" {
			return Result{Status: model.StatusMalformed}
		}
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return Result{Status: model.StatusMalformed}
	}
	plate := strings.ToUpper(fields[0])
	code := fields[1]

	// Out of range timestamps saturate to MinInt64/MaxInt64: far past or far future.
	if ts < now.Unix()-freshness {
		return Result{Status: model.StatusExpired, Plate: plate}
	}
	if plates == nil {
		return Result{Status: model.StatusUnknownPlate, Plate: plate}
	}
	stored, ok := plates.Lookup(plate)
	if !ok {
		return Result{Status: model.StatusUnknownPlate, Plate: plate}
	}
	if stored != code {
		return Result{Status: model.StatusCodeMismatch, Plate: plate}
	}
	return Result{Status: model.StatusValid, Plate: plate}
}

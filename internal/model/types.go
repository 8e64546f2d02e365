package model

import "time"

type Status string

const (
	StatusValid        Status = "valid"
	StatusExpired      Status = "expired"
	StatusUnknownPlate Status = "unknown_plate"
	StatusCodeMismatch Status = "code_mismatch"
	StatusMalformed    Status = "malformed"
	StatusForced       Status = "forced"
)

// AccessEvent is one evaluated scan or manual override. The raw token is
// never kept because it carries the plate's secret code.
type AccessEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Plate     string    `json:"plate,omitempty"`
	Status    Status    `json:"status"`
	Granted   bool      `json:"granted"`
	Opened    bool      `json:"opened"`
}

type BarrierState struct {
	Allowed          bool   `json:"allowed"`
	Open             bool   `json:"open"`
	RemainingSeconds int    `json:"remaining_seconds"`
	LastSeenToken    string `json:"-"`
}

type Counters struct {
	Total  int            `json:"total"`
	Status map[Status]int `json:"status"`
	Opened int            `json:"opened"`
}

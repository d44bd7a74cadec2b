// Package runlog persists the outcomes of sync runs. History is bounded: a
// store keeps only the most recent runs, oldest dropped first.
package runlog

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// HistoryCap is how many outcomes a store retains.
const HistoryCap = 10

var ErrInvalidInput = errors.New("invalid input")

// Status classifies how a run ended.
type Status string

const (
	StatusComplete Status = "complete"
	StatusPartial  Status = "partial"
	StatusFailed   Status = "failed"
)

// Outcome is one finished run.
type Outcome struct {
	ID           string    `json:"id"`
	Mode         string    `json:"mode"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
	Fetched      int       `json:"fetched"`
	Deduplicated int       `json:"deduplicated"`
	Updated      int       `json:"updated"`
	Appended     int       `json:"appended"`
	Status       Status    `json:"status"`
	Notify       bool      `json:"notify"`
	Message      string    `json:"message,omitempty"`
}

// NewRunID mints a unique identifier for a run.
func NewRunID() string {
	return uuid.NewString()
}

// Store keeps the bounded run history.
type Store interface {
	// Append records an outcome and prunes history past HistoryCap.
	Append(outcome Outcome) error
	// Recent returns outcomes newest first.
	Recent() ([]Outcome, error)
	Close() error
}

// capHistory keeps the newest entries of a newest-first slice.
func capHistory(outcomes []Outcome) []Outcome {
	if len(outcomes) <= HistoryCap {
		return outcomes
	}
	return outcomes[:HistoryCap]
}

package models

import "fmt"

// SessionStatus represents the server-side state of a clustering session.
type SessionStatus string

const (
	StatusStarted            SessionStatus = "STARTED"
	StatusProcessing         SessionStatus = "PROCESSING"
	StatusSuccess            SessionStatus = "SUCCESS"
	StatusFailure            SessionStatus = "FAILURE"
	StatusReclustered        SessionStatus = "RECLUSTERED"
	StatusReclusteringFailed SessionStatus = "RECLUSTERING_FAILED"
)

// transitions is the allowed forward edge set of the status state machine.
// A terminal result status can only move again through an explicit
// adjustment (recluster), never through polling.
var transitions = map[SessionStatus][]SessionStatus{
	StatusStarted:     {StatusProcessing, StatusSuccess, StatusFailure},
	StatusProcessing:  {StatusSuccess, StatusFailure},
	StatusSuccess:     {StatusReclustered, StatusReclusteringFailed},
	StatusReclustered: {StatusReclustered, StatusReclusteringFailed},
}

// ParseStatus validates a wire status value against the known set.
func ParseStatus(s string) (SessionStatus, error) {
	switch st := SessionStatus(s); st {
	case StatusStarted, StatusProcessing, StatusSuccess, StatusFailure,
		StatusReclustered, StatusReclusteringFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown session status %q", s)
}

// Terminal reports whether polling should stop once this status is observed.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusReclustered, StatusReclusteringFailed:
		return true
	}
	return false
}

// ResultBearing reports whether the session carries a usable cluster set,
// which is the precondition for every adjustment operation.
func (s SessionStatus) ResultBearing() bool {
	return s == StatusSuccess || s == StatusReclustered
}

// CanTransition reports whether moving from s to next is a legal forward
// edge. Identity moves are always allowed (repeated polls of an unchanged
// session).
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	if s == next {
		return true
	}
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

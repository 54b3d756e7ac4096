package models

import "time"

// DecisionRecord is one reviewer decision and what the backend made of it.
type DecisionRecord struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Accept    bool      `json:"accept"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	MovedTo   string    `json:"moved_to,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type OutcomeCount struct {
	Outcome string `json:"outcome"`
	Count   int    `json:"count"`
}

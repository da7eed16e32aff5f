package domain

import "time"

// Contract is the record created by `DEFINE CONTRACT`.
type Contract struct {
	ID        string    `json:"id"`
	Clauses   []string  `json:"clauses"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Idea is the record created by `DEFINE IDEA`.
type Idea struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

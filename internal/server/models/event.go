package models

import (
	"encoding/json"
	"time"
)

// Event is an audit-log entry owned by exactly one account.
type Event struct {
	ID              string          `json:"id"`
	AccountID       string          `json:"-"`
	ObjectID        string          `json:"object_id" validate:"notblank,max=255"`
	ObjectType      string          `json:"object_type" validate:"notblank,max=255"`
	HumanIdentifier string          `json:"human_identifier" validate:"notblank,max=255"`
	Timestamp       time.Time       `json:"timestamp" validate:"required"`
	Message         string          `json:"message" validate:"notblank,max=255"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	Created         time.Time       `json:"created"`
	Modified        time.Time       `json:"modified"`
}

// EventFilter narrows an event listing. Empty strings do not filter.
type EventFilter struct {
	ObjectID        string
	ObjectType      string
	HumanIdentifier string
	Search          string
	Ordering        string
	Limit           int
	Offset          int
}

// EventPage is one page of a listing plus the unpaged total.
type EventPage struct {
	Count  int
	Events []*Event
}

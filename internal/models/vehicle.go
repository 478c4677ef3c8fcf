package models

import "time"

// Vehicle is a PSV record owned by the remote backend. The registration
// number is the unique key; everything else is read-only for the duration
// of a booking session.
type Vehicle struct {
	Registration  string    `json:"registration_number"`
	Capacity      int       `json:"capacity"`
	Cost          int64     `json:"cost"` // per seat, KES
	Departure     string    `json:"departure"`
	Destination   string    `json:"destination"`
	DepartureTime time.Time `json:"departure_time"`
}

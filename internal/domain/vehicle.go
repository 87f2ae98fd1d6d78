package domain

import "time"

// Vehicle links a registration plate to its owning user. Tickets hang off a
// vehicle, so ownership checks walk ticket -> vehicle -> user.
type Vehicle struct {
	ID        string
	UserID    string
	Plate     string
	Make      string
	Colour    string
	CreatedAt time.Time
}

package model

import "strings"

// Recipient is the push profile of a user as seen by the dispatcher.
type Recipient struct {
	ID          string `db:"id"`
	FirstName   string `db:"first_name"`
	LastName    string `db:"last_name"`
	PushEnabled bool   `db:"push_notifications_enabled"`
}

// FullName is the display name substituted into notification bodies.
func (r *Recipient) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// Project holds the participants of a project that can receive notifications.
type Project struct {
	ID           int64   `db:"id"`
	Title        string  `db:"title"`
	AuthorID     *string `db:"author_id"`
	FreelancerID *string `db:"freelancer_id"`
}

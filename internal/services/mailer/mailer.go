// Package mailer is the adapter in front of the external email
// collaborator. Delivery is fire-and-forget: the dispatcher logs failures
// and never rolls back a notification for a missed email.
package mailer

import "context"

// Message carries one sequel notification email.
type Message struct {
	To             string
	ToName         string
	SuccessorTitle string
	OriginalTitle  string
	Platform       string
	ReleaseDate    string
	PosterURL      string
	UnsubscribeURL string
}

// Sender delivers notification emails.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

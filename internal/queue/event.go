// Package queue defines the email payloads exchanged over RabbitMQ and
// the publisher and consumer that move them.
package queue

import "time"

// DefaultEmailQueue is used when MAIL_QUEUE is not set.
const DefaultEmailQueue = "notifications.email"

// EmailMessage is one rendered email. The mailer delivers it as plain
// text without touching the primary database.
type EmailMessage struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"` // registered, reservation_created, ...
	To        string    `json:"to"`
	ToName    string    `json:"to_name"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

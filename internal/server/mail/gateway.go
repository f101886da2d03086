// Package mail delivers outgoing email through pluggable gateways.
package mail

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Message is one outgoing email. Kind and Link are carried alongside the
// rendered text so queue consumers can re-render if they want to.
type Message struct {
	Kind      string    `json:"kind"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Link      string    `json:"link,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const KindEmailVerification = "email_verification"

// Gateway accepts "send message to address" requests.
type Gateway interface {
	Send(ctx context.Context, msg Message) error
}

// VerificationLink joins the public base URL and the token path.
func VerificationLink(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/verify-email/" + url.PathEscape(token)
}

// NewVerificationMessage renders the activation email.
func NewVerificationMessage(from, to, name, link string, ttl time.Duration, now time.Time) Message {
	if name == "" {
		name = "there"
	}
	body := fmt.Sprintf(
		"Hi %s,\n\nPlease confirm your email address to activate your hostel account:\n\n%s\n\n"+
			"The link expires in %s. If it has expired, request a new one from the login page.\n",
		name, link, humanDuration(ttl))

	return Message{
		Kind:      KindEmailVerification,
		From:      from,
		To:        to,
		Subject:   "Verify your email address",
		Body:      body,
		Link:      link,
		CreatedAt: now,
	}
}

func humanDuration(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	return d.String()
}

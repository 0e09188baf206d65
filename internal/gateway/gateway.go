// Package gateway abstracts the WhatsApp messaging provider. The worker only
// sees the Sender interface, which keeps the send loop testable with a fake.
package gateway

import "context"

type SendRequest struct {
	// To is the contact's E.164 number, without the whatsapp: prefix.
	To         string
	ContentSid string
	// Variables are the positional template variables, keyed "1".."n".
	Variables map[string]string
}

type SendResult struct {
	Sid    string
	Status string
}

type Sender interface {
	Send(ctx context.Context, req SendRequest) (*SendResult, error)
}

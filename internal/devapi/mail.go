package devapi

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mrlokans/campusadmin/internal/tasks"
)

// Mailer delivers outgoing mail. The outbox worker calls it.
type Mailer = tasks.EmailSender

// LogMailer writes mails to the log instead of sending them, so reset and
// verification tokens can be picked up from the dev server output.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, email tasks.Email) error {
	log.Info().
		Str("to", email.To).
		Str("subject", email.Subject).
		Str("body", email.Body).
		Msg("Outgoing mail")
	return nil
}

// Outbox queues mails for asynchronous delivery.
type Outbox struct {
	queue   *tasks.Client
	metrics *Metrics
}

func NewOutbox(queue *tasks.Client, metrics *Metrics) *Outbox {
	return &Outbox{queue: queue, metrics: metrics}
}

// Enqueue stores the mail in the task queue.
func (o *Outbox) Enqueue(email tasks.Email) error {
	if _, err := o.queue.Add(tasks.SendEmailTask{Email: email}).Save(); err != nil {
		return fmt.Errorf("failed to queue mail: %w", err)
	}
	o.metrics.MailsQueued.Inc()
	return nil
}

func passwordResetMail(to, token string) tasks.Email {
	return tasks.Email{
		To:      to,
		Subject: "Reset your campus admin password",
		Body:    "Use this token to choose a new password: " + token,
	}
}

func verificationMail(to, token string) tasks.Email {
	return tasks.Email{
		To:      to,
		Subject: "Verify your email address",
		Body:    "Use this token to verify your email address: " + token,
	}
}

func accessRequestMail(to, requestID string) tasks.Email {
	return tasks.Email{
		To:      to,
		Subject: "Access request received",
		Body:    "Your access request " + requestID + " is awaiting administrator approval.",
	}
}

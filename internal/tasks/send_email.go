package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/rs/zerolog/log"
)

// Email is a message handed to an EmailSender.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// EmailSender delivers a single email.
type EmailSender interface {
	Send(ctx context.Context, email Email) error
}

// SendEmailTask delivers one email through the configured sender.
type SendEmailTask struct {
	Email Email `json:"email"`
}

// Config returns the queue configuration for email tasks.
func (t SendEmailTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "send_email",
		MaxAttempts: 3,
		Backoff:     30 * time.Second,
		Timeout:     time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// SendEmailProcessor creates a processor function for SendEmailTask.
func SendEmailProcessor(sender EmailSender) backlite.QueueProcessor[SendEmailTask] {
	return func(ctx context.Context, task SendEmailTask) error {
		if sender == nil {
			return errors.New("email sender not configured")
		}
		if task.Email.To == "" {
			return errors.New("email has no recipient")
		}

		if err := sender.Send(ctx, task.Email); err != nil {
			return fmt.Errorf("send email to %s: %w", task.Email.To, err)
		}

		log.Debug().Str("to", task.Email.To).Str("subject", task.Email.Subject).Msg("Email sent")
		return nil
	}
}

// NewSendEmailQueue creates a backlite queue for email tasks.
func NewSendEmailQueue(sender EmailSender) backlite.Queue {
	return backlite.NewQueue(SendEmailProcessor(sender))
}

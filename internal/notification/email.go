package notification

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
)

const (
	senderEmailName = "Gundam Live"
)

// EmailNotifier emails notifications over SMTP.
type EmailNotifier struct {
	client *mail.Client
	from   string
	to     string
}

func NewEmailNotifier(host string, port int, username, password, to string) (*EmailNotifier, error) {
	client, err := mail.NewClient(host, mail.WithPort(port), mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(username), mail.WithPassword(password))
	if err != nil {
		return nil, err
	}

	return &EmailNotifier{
		client: client,
		from:   username,
		to:     to,
	}, nil
}

func (n *EmailNotifier) Notify(ctx context.Context, notification Notification) error {
	msg, err := n.message(notification)
	if err != nil {
		return err
	}

	if err = n.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (n *EmailNotifier) message(notification Notification) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if err := msg.FromFormat(senderEmailName, n.from); err != nil {
		return nil, fmt.Errorf("failed to set From address: %w", err)
	}
	if err := msg.To(n.to); err != nil {
		return nil, fmt.Errorf("failed to set To address: %w", err)
	}

	msg.Subject(notification.Title)
	msg.SetBodyString(mail.TypeTextPlain, notification.Message)
	return msg, nil
}

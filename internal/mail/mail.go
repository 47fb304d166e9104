// Package mail delivers account notifications such as generated passwords.
package mail

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Message is a plain text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// PasswordMessage builds the email carrying a freshly generated password.
func PasswordMessage(to, subject, firstName, password string) Message {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = "there"
	}
	return Message{
		To:      to,
		Subject: subject,
		Body: fmt.Sprintf(
			"Hello %s,\n\nYour new account password is: %s\n\nPlease sign in and keep it private.\n\nThe Support Team",
			name, password,
		),
	}
}

// LogSender records that a message would have been sent. Bodies are never logged.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("Mail delivery disabled, message not sent",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject))
	return nil
}

// WriterSender prints whole messages, body included, to w. The operator CLI
// uses it so a generated password reaches the console instead of a relay.
type WriterSender struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSender(w io.Writer) *WriterSender {
	return &WriterSender{w: w}
}

func (s *WriterSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "To: %s\nSubject: %s\n\n%s\n", msg.To, msg.Subject, msg.Body)
	return err
}

package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/smtp"
	"time"

	"github.com/emersion/go-message/mail"

	"popout/internal/models"
)

// SMTPNotifier sends plain-text mail through a relay. Message framing is
// built with go-message so headers are folded and encoded correctly.
type SMTPNotifier struct {
	host string
	port int
	from string
}

func (n *SMTPNotifier) JoinRequested(ctx context.Context, organizer models.User, event models.Event, requester models.User) error {
	subject := "New join request"
	body := JoinRequestedMessage(requester, event) + "\nOpen the app to accept or reject it.\n"
	return n.send(organizer.Email, subject, body)
}

func (n *SMTPNotifier) RequestDecided(ctx context.Context, user models.User, event models.Event, status models.RequestStatus) error {
	subject := "Your join request was " + string(status)
	body := RequestDecidedMessage(event, status) + "\n"
	return n.send(user.Email, subject, body)
}

func (n *SMTPNotifier) VerificationCode(ctx context.Context, email, code string) error {
	subject := "Verification"
	body := fmt.Sprintf("Your verification code is: %s\n", code)
	return n.send(email, subject, body)
}

func (n *SMTPNotifier) send(to, subject, body string) error {
	var h mail.Header
	h.SetDate(time.Now().UTC())
	h.SetAddressList("From", []*mail.Address{{Name: "Popout", Address: n.from}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(subject)

	var buf bytes.Buffer
	mw, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return fmt.Errorf("compose mail: %w", err)
	}
	if _, err := io.WriteString(mw, body); err != nil {
		mw.Close()
		return fmt.Errorf("compose mail: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("compose mail: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	return smtp.SendMail(addr, nil, n.from, []string{to}, buf.Bytes())
}

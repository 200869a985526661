package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/kmilewski/zlot/internal/domain"
	"github.com/kmilewski/zlot/internal/mail"
)

// Client executes the full send sequence for one message to one recipient:
// greeting, EHLO, optional STARTTLS upgrade, AUTH LOGIN, envelope, DATA,
// QUIT. Every failure is converted into a typed SendResult at this boundary;
// the scheduler loop above never sees an error value from a send.
type Client struct {
	timeout time.Duration
	logger  *slog.Logger

	// dial is swappable so tests can run the protocol over an in-memory pipe.
	dial func(ctx context.Context, settings domain.SMTPSettings, timeout time.Duration) (*Transport, error)
}

// NewClient creates a client with the given per-operation timeout.
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		timeout: timeout,
		logger:  logger,
		dial:    Dial,
	}
}

// Send delivers one message over a fresh, single-use connection.
func (c *Client) Send(ctx context.Context, settings domain.SMTPSettings, msg Message) SendResult {
	if err := settings.Validate(); err != nil {
		return failure(KindConnection, err.Error())
	}

	t, err := c.dial(ctx, settings, c.timeout)
	if err != nil {
		return failure(dialKind(settings, err), err.Error())
	}
	defer t.Close()

	// Greeting. Anything readable is accepted; servers announce themselves
	// with 220 but the code carries no decision here.
	if _, err := t.ReadResponse(); err != nil {
		return failure(netKind(err, KindConnection), err.Error())
	}

	if res := c.ehlo(t, settings.Host); !res.OK {
		return res
	}

	if settings.Encryption == domain.EncryptionSTARTTLS {
		resp, err := t.Cmd("STARTTLS")
		if err != nil {
			return failure(netKind(err, KindConnection), err.Error())
		}
		if resp.Code != 220 {
			return failure(KindTLS, fmt.Sprintf("STARTTLS refused: %s", resp.Text))
		}
		if err := t.StartTLS(settings.Host); err != nil {
			return failure(netKind(err, KindTLS), err.Error())
		}
		// The upgrade reset the session; capabilities must be renegotiated.
		if res := c.ehlo(t, settings.Host); !res.OK {
			return res
		}
	}

	if settings.Username != "" {
		if res := c.authLogin(t, settings.Username, settings.Password); !res.OK {
			return res
		}
	}

	if res := c.envelope(t, settings.FromAddress, msg.To); !res.OK {
		return res
	}

	if res := c.data(t, settings, msg); !res.OK {
		return res
	}

	c.logger.Debug("smtp send complete", "to", msg.To, "host", settings.Host)
	return success()
}

// ehlo identifies the client and collects (and discards) the capability list.
func (c *Client) ehlo(t *Transport, host string) SendResult {
	resp, err := t.Cmd("EHLO " + host)
	if err != nil {
		return failure(netKind(err, KindConnection), err.Error())
	}
	if resp.Class() != 2 {
		return failure(KindProtocol, fmt.Sprintf("EHLO rejected: %s", resp.Text))
	}
	return success()
}

// authLogin performs the two-round-trip AUTH LOGIN exchange. Skipped
// entirely by the caller when no username is configured (dev relays).
func (c *Client) authLogin(t *Transport, username, password string) SendResult {
	resp, err := t.Cmd("AUTH LOGIN")
	if err != nil {
		return failure(netKind(err, KindConnection), err.Error())
	}
	if resp.Code != 334 {
		return failure(KindProtocol, fmt.Sprintf("AUTH LOGIN not accepted: %s", resp.Text))
	}

	resp, err = t.Cmd(mail.Base64(username))
	if err != nil {
		return failure(netKind(err, KindConnection), err.Error())
	}
	if resp.Code != 334 {
		return failure(KindProtocol, fmt.Sprintf("username not accepted: %s", resp.Text))
	}

	resp, err = t.Cmd(mail.Base64(password))
	if err != nil {
		return failure(netKind(err, KindConnection), err.Error())
	}
	if resp.Code != 235 {
		return failure(KindAuth, resp.Text)
	}
	return success()
}

// envelope sets sender and recipient. A permanent 5xx on RCPT TO is the
// recipient's problem, not the connection's: terminal for this recipient,
// never retried within the run.
func (c *Client) envelope(t *Transport, from, to string) SendResult {
	resp, err := t.Cmd(fmt.Sprintf("MAIL FROM:<%s>", from))
	if err != nil {
		return failure(netKind(err, KindConnection), err.Error())
	}
	if resp.Class() != 2 {
		return failure(KindProtocol, fmt.Sprintf("MAIL FROM rejected: %s", resp.Text))
	}

	resp, err = t.Cmd(fmt.Sprintf("RCPT TO:<%s>", to))
	if err != nil {
		return failure(netKind(err, KindConnection), err.Error())
	}
	switch {
	case resp.Class() == 2:
		return success()
	case resp.Class() == 5:
		return failure(KindRecipientRejected, resp.Text)
	default:
		return failure(KindProtocol, fmt.Sprintf("RCPT TO rejected: %s", resp.Text))
	}
}

// data transmits the MIME payload and checks the final acceptance.
func (c *Client) data(t *Transport, settings domain.SMTPSettings, msg Message) SendResult {
	resp, err := t.Cmd("DATA")
	if err != nil {
		return failure(netKind(err, KindConnection), err.Error())
	}
	if resp.Code != 354 {
		return failure(KindProtocol, fmt.Sprintf("DATA not accepted: %s", resp.Text))
	}

	payload := mail.BuildMessage(
		settings.FromAddress, settings.FromName,
		msg.To, msg.Subject, msg.HTMLBody, msg.TextBody,
	)
	if err := t.Write(payload); err != nil {
		return failure(netKind(err, KindConnection), err.Error())
	}

	resp, err = t.ReadResponse()
	if err != nil {
		return failure(netKind(err, KindConnection), err.Error())
	}
	if resp.Code != 250 {
		return failure(KindDeliveryRejected, resp.Text)
	}
	return success()
}

// netKind maps transport errors to their kind: deadline expiries become
// timeouts, unparseable responses become protocol violations, everything
// else keeps the caller's fallback.
func netKind(err error, fallback ErrorKind) ErrorKind {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return KindProtocol
	}
	return fallback
}

// dialKind classifies a failed connect: timeouts first, then TLS handshake
// failures for implicit-TLS dials, then plain connection errors.
func dialKind(settings domain.SMTPSettings, err error) ErrorKind {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	if settings.Encryption == domain.EncryptionSSL {
		var rhe tls.RecordHeaderError
		var cve *tls.CertificateVerificationError
		if errors.As(err, &rhe) || errors.As(err, &cve) {
			return KindTLS
		}
	}
	return KindConnection
}

// Package smtp implements a minimal SMTP client speaking the wire protocol
// directly: EHLO, STARTTLS, AUTH LOGIN, MAIL FROM, RCPT TO, DATA, QUIT.
//
// The standard library's net/smtp is deliberately not used here: it hides
// response codes behind opaque errors (making the per-recipient error
// taxonomy impossible to derive reliably), has no per-command deadlines and
// no AUTH LOGIN support. Reminder delivery needs to distinguish "this
// recipient is bad" from "the server is down", so the protocol exchange is
// owned end to end.
package smtp

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kmilewski/zlot/internal/domain"
)

// ParseError marks a server reply that does not start with a valid 3-digit
// status code. The client reports these as protocol violations.
type ParseError struct {
	Line string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable server response: %q", e.Line)
}

// Response is one parsed server reply: the leading 3-digit code plus the
// full (possibly multi-line) text.
type Response struct {
	Code int
	Text string
}

// Class returns the first digit of the status code (2 for 250, 5 for 550).
func (r Response) Class() int {
	return r.Code / 100
}

// Transport owns exactly one connection to a mail server and exposes the
// command/response primitives the client sequences. Connections are
// single-use: opened, used for one message, closed.
type Transport struct {
	conn     net.Conn
	r        *bufio.Reader
	timeout  time.Duration
	upgraded bool
}

// Dial opens a connection per the settings' encryption mode: a direct TLS
// session for "ssl", plaintext otherwise (STARTTLS upgrades later). The
// connect attempt itself is bounded by timeout; on expiry the socket is
// guaranteed closed.
func Dial(ctx context.Context, settings domain.SMTPSettings, timeout time.Duration) (*Transport, error) {
	addr := net.JoinHostPort(settings.Host, strconv.Itoa(settings.Port))
	dialer := &net.Dialer{Timeout: timeout}

	var conn net.Conn
	var err error
	if settings.Encryption == domain.EncryptionSSL {
		td := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: settings.Host}}
		conn, err = td.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	return NewTransport(conn, timeout), nil
}

// NewTransport wraps an already-open connection. Exposed so tests can drive
// the client against an in-memory pipe.
func NewTransport(conn net.Conn, timeout time.Duration) *Transport {
	return &Transport{
		conn:    conn,
		r:       bufio.NewReader(conn),
		timeout: timeout,
	}
}

// ReadResponse reads one complete server reply. Multi-line replies (such as
// EHLO capability lists, "250-PIPELINING" style) are consumed until the
// final line, recognized by a space after the 3-digit code.
func (t *Transport) ReadResponse() (Response, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
		return Response{}, err
	}

	var text strings.Builder
	for {
		line, err := t.r.ReadString('\n')
		if err != nil {
			return Response{}, fmt.Errorf("read response: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 3 {
			return Response{}, &ParseError{Line: line}
		}
		code, err := strconv.Atoi(line[:3])
		if err != nil || code < 100 || code > 599 {
			return Response{}, &ParseError{Line: line}
		}
		if text.Len() > 0 {
			text.WriteString("\n")
		}
		text.WriteString(line)

		// "250 done" terminates, "250-more to come" does not.
		if len(line) == 3 || line[3] == ' ' {
			return Response{Code: code, Text: text.String()}, nil
		}
	}
}

// Cmd writes one command line and reads the server's reply. Both directions
// run under the per-operation deadline.
func (t *Transport) Cmd(line string) (Response, error) {
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.timeout)); err != nil {
		return Response{}, err
	}
	if _, err := t.conn.Write([]byte(line + "\r\n")); err != nil {
		return Response{}, fmt.Errorf("write %q: %w", firstWord(line), err)
	}
	return t.ReadResponse()
}

// Write sends raw payload bytes (the DATA body) without awaiting a reply.
func (t *Transport) Write(payload string) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.timeout)); err != nil {
		return err
	}
	if _, err := t.conn.Write([]byte(payload)); err != nil {
		return fmt.Errorf("write message body: %w", err)
	}
	return nil
}

// StartTLS upgrades the existing plaintext connection to TLS in place. Only
// valid once, and only after the server accepted the STARTTLS command with a
// 220. The caller must re-issue EHLO afterwards - the TLS session discards
// all prior capability negotiation.
func (t *Transport) StartTLS(hostname string) error {
	if t.upgraded {
		return fmt.Errorf("connection already upgraded to TLS")
	}

	tlsConn := tls.Client(t.conn, &tls.Config{ServerName: hostname})

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return fmt.Errorf("tls handshake: %w", err)
	}

	t.conn = tlsConn
	t.r = bufio.NewReader(tlsConn)
	t.upgraded = true
	return nil
}

// Close sends a best-effort QUIT and closes the socket. It never fails:
// by this point the send outcome is already decided, so a broken goodbye
// is not worth surfacing.
func (t *Transport) Close() {
	_ = t.conn.SetDeadline(time.Now().Add(2 * time.Second))
	_, _ = t.conn.Write([]byte("QUIT\r\n"))
	_, _ = t.r.ReadString('\n')
	_ = t.conn.Close()
}

func firstWord(line string) string {
	if i := strings.IndexByte(line, ' '); i > 0 {
		return line[:i]
	}
	return line
}

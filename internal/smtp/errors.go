package smtp

// =============================================================================
// Error Taxonomy
// =============================================================================

// ErrorKind classifies a failed send attempt. Kinds are stable strings so
// they can be stored in the send-attempt log and used as metric labels.
type ErrorKind string

const (
	// KindConnection covers DNS failures, refused connections and broken
	// sockets before or between commands.
	KindConnection ErrorKind = "connection_error"

	// KindTLS covers handshake failures and a rejected STARTTLS command.
	KindTLS ErrorKind = "tls_error"

	// KindAuth is returned when the final AUTH LOGIN step is not accepted
	// (535/534 class responses).
	KindAuth ErrorKind = "authentication_failed"

	// KindRecipientRejected is a permanent 5xx on RCPT TO. It is terminal
	// for that recipient only and must never be retried within a run.
	KindRecipientRejected ErrorKind = "recipient_rejected"

	// KindDeliveryRejected is a rejection of the message body after DATA.
	KindDeliveryRejected ErrorKind = "delivery_rejected"

	// KindTimeout is any socket operation exceeding its deadline.
	KindTimeout ErrorKind = "timeout"

	// KindProtocol is an unexpected or unparseable server response.
	KindProtocol ErrorKind = "protocol_violation"
)

// SendResult is the typed outcome of one send attempt. Failures carry the
// kind plus the server's own words for the send-attempt log; nothing is ever
// thrown past the client boundary.
type SendResult struct {
	OK     bool
	Kind   ErrorKind
	Detail string
}

func success() SendResult {
	return SendResult{OK: true}
}

func failure(kind ErrorKind, detail string) SendResult {
	return SendResult{Kind: kind, Detail: detail}
}

// =============================================================================
// Outbound Message
// =============================================================================

// Message is one email to one recipient, constructed fresh per send. The
// subject and body arrive fully resolved; TextBody may be empty, in which
// case a fallback is derived from the HTML.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

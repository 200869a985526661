package domain

import "fmt"

// =============================================================================
// SMTP Settings
// =============================================================================

// Encryption selects how the SMTP connection is secured.
type Encryption string

const (
	// EncryptionNone uses a plaintext connection (development relays).
	EncryptionNone Encryption = "none"

	// EncryptionSSL opens a TLS connection directly (implicit TLS, port 465).
	EncryptionSSL Encryption = "ssl"

	// EncryptionSTARTTLS opens plaintext and upgrades in place (port 587).
	EncryptionSTARTTLS Encryption = "starttls"
)

// IsValid returns true if the encryption mode is a recognized value.
func (e Encryption) IsValid() bool {
	switch e {
	case EncryptionNone, EncryptionSSL, EncryptionSTARTTLS:
		return true
	}
	return false
}

// SMTPSettings holds the mail server connection parameters. Loaded once per
// scheduler run and treated as immutable for the duration of the run - there
// is no process-wide singleton.
type SMTPSettings struct {
	Host        string
	Port        int
	Encryption  Encryption
	Username    string
	Password    string
	FromAddress string
	FromName    string
}

// Validate checks the settings are usable for sending.
func (s SMTPSettings) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("smtp host is required")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("smtp port must be between 1 and 65535, got %d", s.Port)
	}
	if !s.Encryption.IsValid() {
		return fmt.Errorf("unknown smtp encryption mode: %q", s.Encryption)
	}
	if s.FromAddress == "" {
		return fmt.Errorf("smtp from address is required")
	}
	return nil
}

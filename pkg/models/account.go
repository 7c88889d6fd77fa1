package models

import (
	"database/sql"
	"net"
	"strconv"
	"time"
)

// Encryption is the transport security scheme of a mail endpoint.
type Encryption string

const (
	EncryptionSSL  Encryption = "ssl"  // implicit TLS
	EncryptionTLS  Encryption = "tls"  // STARTTLS upgrade
	EncryptionNone Encryption = "none" // plaintext
)

// Valid reports whether e is one of the known schemes.
func (e Encryption) Valid() bool {
	switch e {
	case EncryptionSSL, EncryptionTLS, EncryptionNone:
		return true
	}
	return false
}

// Endpoint is a host/port pair plus its transport security.
type Endpoint struct {
	Host       string
	Port       int
	Encryption Encryption
}

// Addr returns host:port.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Account represents one configured mailbox owned by a user
type Account struct {
	ID             int64        `db:"id"`
	UserID         int64        `db:"user_id"`
	Email          string       `db:"email"`
	DisplayName    string       `db:"display_name"`
	Password       string       `db:"password"` // encrypted at rest, plaintext only after GetAccountWithCredential
	IMAPHost       string       `db:"imap_host"`
	IMAPPort       int          `db:"imap_port"`
	IMAPEncryption Encryption   `db:"imap_encryption"`
	SMTPHost       string       `db:"smtp_host"`
	SMTPPort       int          `db:"smtp_port"`
	SMTPEncryption Encryption   `db:"smtp_encryption"`
	IsActive       bool         `db:"is_active"`
	LastSync       sql.NullTime `db:"last_sync"`
	CreatedAt      time.Time    `db:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at"`
}

// IMAP returns the incoming mail endpoint.
func (a *Account) IMAP() Endpoint {
	return Endpoint{Host: a.IMAPHost, Port: a.IMAPPort, Encryption: a.IMAPEncryption}
}

// SMTP returns the outgoing mail endpoint.
func (a *Account) SMTP() Endpoint {
	return Endpoint{Host: a.SMTPHost, Port: a.SMTPPort, Encryption: a.SMTPEncryption}
}

// Sender returns the display name to put in From, falling back to the address.
func (a *Account) Sender() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Email
}

package email

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/mixelka/unimail/pkg/models"
)

// ProviderSettings are the server endpoints of a mail provider.
type ProviderSettings struct {
	Name string
	IMAP models.Endpoint
	SMTP models.Endpoint
}

func preset(name, imapHost, smtpHost string, smtpPort int, smtpEnc models.Encryption) ProviderSettings {
	return ProviderSettings{
		Name: name,
		IMAP: models.Endpoint{Host: imapHost, Port: 993, Encryption: models.EncryptionSSL},
		SMTP: models.Endpoint{Host: smtpHost, Port: smtpPort, Encryption: smtpEnc},
	}
}

var (
	gmail   = preset("gmail", "imap.gmail.com", "smtp.gmail.com", 587, models.EncryptionTLS)
	outlook = preset("outlook", "outlook.office365.com", "smtp.office365.com", 587, models.EncryptionTLS)
	yahoo   = preset("yahoo", "imap.mail.yahoo.com", "smtp.mail.yahoo.com", 587, models.EncryptionTLS)
	mailru  = preset("mailru", "imap.mail.ru", "smtp.mail.ru", 465, models.EncryptionSSL)
	icloud  = preset("icloud", "imap.mail.me.com", "smtp.mail.me.com", 587, models.EncryptionTLS)
)

// Common providers by address domain
var knownProviders = map[string]ProviderSettings{
	"gmail.com":      gmail,
	"googlemail.com": gmail,
	"outlook.com":    outlook,
	"hotmail.com":    outlook,
	"live.com":       outlook,
	"msn.com":        outlook,
	"yahoo.com":      yahoo,
	"yahoo.co.uk":    yahoo,
	"yandex.ru":      preset("yandex", "imap.yandex.ru", "smtp.yandex.ru", 465, models.EncryptionSSL),
	"yandex.com":     preset("yandex", "imap.yandex.com", "smtp.yandex.com", 465, models.EncryptionSSL),
	"mail.ru":        mailru,
	"bk.ru":          mailru,
	"list.ru":        mailru,
	"inbox.ru":       mailru,
	"icloud.com":     icloud,
	"me.com":         icloud,
	"mac.com":        icloud,
	"aol.com":        preset("aol", "imap.aol.com", "smtp.aol.com", 465, models.EncryptionSSL),
	"zoho.com":       preset("zoho", "imap.zoho.com", "smtp.zoho.com", 465, models.EncryptionSSL),
	"fastmail.com":   preset("fastmail", "imap.fastmail.com", "smtp.fastmail.com", 465, models.EncryptionSSL),
	"gmx.com":        preset("gmx", "imap.gmx.com", "mail.gmx.com", 587, models.EncryptionTLS),
	"gmx.de":         preset("gmx", "imap.gmx.net", "mail.gmx.net", 587, models.EncryptionTLS),
	"web.de":         preset("webde", "imap.web.de", "smtp.web.de", 587, models.EncryptionTLS),
	"t-online.de":    preset("t-online", "secureimap.t-online.de", "securesmtp.t-online.de", 465, models.EncryptionSSL),
	"rambler.ru":     preset("rambler", "imap.rambler.ru", "smtp.rambler.ru", 465, models.EncryptionSSL),
}

// LookupProvider returns the preset for a known address domain.
func LookupProvider(email string) (ProviderSettings, bool) {
	p, ok := knownProviders[GetDomainFromEmail(email)]
	return p, ok
}

// DetectProvider determines the servers for an email address: known
// providers first, then reachable imap./mail./smtp. hosts of the domain,
// then hosts derived from the primary MX record.
func DetectProvider(ctx context.Context, email string) (ProviderSettings, error) {
	domain := GetDomainFromEmail(email)
	if domain == "" {
		return ProviderSettings{}, fmt.Errorf("invalid email format")
	}

	if p, ok := knownProviders[domain]; ok {
		return p, nil
	}

	p := ProviderSettings{
		Name: domain,
		IMAP: models.Endpoint{Host: "imap." + domain, Port: 993, Encryption: models.EncryptionSSL},
		SMTP: models.Endpoint{Host: "smtp." + domain, Port: 587, Encryption: models.EncryptionTLS},
	}

	bases := []string{domain}
	if base := mxBase(ctx, domain); base != "" && base != domain {
		bases = append(bases, base)
	}

	if host, ok := firstReachable(ctx, hostsFor(bases, "imap", "mail"), 993); ok {
		p.IMAP.Host = host
	}
	if host, ok := firstReachable(ctx, hostsFor(bases, "smtp", "mail"), 587); ok {
		p.SMTP.Host = host
	} else if host, ok := firstReachable(ctx, hostsFor(bases, "smtp", "mail"), 465); ok {
		p.SMTP = models.Endpoint{Host: host, Port: 465, Encryption: models.EncryptionSSL}
	}

	return p, nil
}

func hostsFor(bases []string, prefixes ...string) []string {
	var out []string
	for _, b := range bases {
		for _, p := range prefixes {
			out = append(out, p+"."+b)
		}
	}
	return out
}

func firstReachable(ctx context.Context, hosts []string, port int) (string, bool) {
	host, _, err := firstSuccess(ctx, hosts, func(h string) error {
		return checkServer(ctx, h, port)
	})
	return host, err == nil
}

// checkServer checks if a server accepts TCP connections
func checkServer(ctx context.Context, host string, port int) error {
	dialer := &net.Dialer{Timeout: 3 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}

// mxBase returns the parent domain of the primary MX host,
// e.g. mx.example.net -> example.net.
func mxBase(ctx context.Context, domain string) string {
	mxRecords, err := net.DefaultResolver.LookupMX(ctx, domain)
	if err != nil || len(mxRecords) == 0 {
		return ""
	}

	mxHost := strings.TrimSuffix(mxRecords[0].Host, ".")
	parts := strings.SplitN(mxHost, ".", 2)
	if len(parts) != 2 || !strings.Contains(parts[1], ".") {
		return ""
	}
	return strings.ToLower(parts[1])
}

// GetDomainFromEmail extracts domain from email address
func GetDomainFromEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ""
	}
	return strings.ToLower(parts[1])
}

package email

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/unimail/pkg/models"
)

func TestLookupProvider(t *testing.T) {
	p, ok := LookupProvider("Someone@GMail.com")
	require.True(t, ok)
	assert.Equal(t, "imap.gmail.com", p.IMAP.Host)
	assert.Equal(t, 993, p.IMAP.Port)
	assert.Equal(t, models.EncryptionSSL, p.IMAP.Encryption)
	assert.Equal(t, models.Endpoint{Host: "smtp.gmail.com", Port: 587, Encryption: models.EncryptionTLS}, p.SMTP)

	p, ok = LookupProvider("ivan@yandex.ru")
	require.True(t, ok)
	assert.Equal(t, 465, p.SMTP.Port)
	assert.Equal(t, models.EncryptionSSL, p.SMTP.Encryption)

	_, ok = LookupProvider("user@unknown-corp.example")
	assert.False(t, ok)
}

func TestDetectProvider(t *testing.T) {
	p, err := DetectProvider(context.Background(), "me@outlook.com")
	require.NoError(t, err)
	assert.Equal(t, "outlook", p.Name)

	_, err = DetectProvider(context.Background(), "not-an-email")
	assert.Error(t, err)
}

func TestGetDomainFromEmail(t *testing.T) {
	assert.Equal(t, "example.org", GetDomainFromEmail("a@Example.org"))
	assert.Equal(t, "", GetDomainFromEmail("a@b@c"))
	assert.Equal(t, "", GetDomainFromEmail("@example.org"))
	assert.Equal(t, "", GetDomainFromEmail("nobody"))
}

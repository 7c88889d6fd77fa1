package telegram

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/mixelka/unimail/pkg/models"
)

var errUsage = errors.New("invalid arguments")

type connectArgs struct {
	Email    string
	Password string
	IMAP     *models.Endpoint // nil means auto-detect
	SMTP     *models.Endpoint
}

// parseConnectArgs parses "/connect email password [imap_host:port smtp_host:port]".
func parseConnectArgs(text string) (connectArgs, error) {
	parts := strings.Fields(text)
	if len(parts) != 3 && len(parts) != 5 {
		return connectArgs{}, errUsage
	}
	args := connectArgs{Email: strings.ToLower(parts[1]), Password: parts[2]}
	if !strings.Contains(args.Email, "@") {
		return connectArgs{}, fmt.Errorf("%w: %q is not an email address", errUsage, parts[1])
	}
	if len(parts) == 3 {
		return args, nil
	}

	imapEP, err := parseEndpoint(parts[3], imapEncryption)
	if err != nil {
		return connectArgs{}, err
	}
	smtpEP, err := parseEndpoint(parts[4], smtpEncryption)
	if err != nil {
		return connectArgs{}, err
	}
	args.IMAP, args.SMTP = &imapEP, &smtpEP
	return args, nil
}

// parseEndpoint parses host:port and derives the encryption from the port.
func parseEndpoint(s string, encryption func(port int) models.Encryption) (models.Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil || host == "" {
		return models.Endpoint{}, fmt.Errorf("%w: %q is not host:port", errUsage, s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return models.Endpoint{}, fmt.Errorf("%w: bad port in %q", errUsage, s)
	}
	return models.Endpoint{Host: strings.ToLower(host), Port: port, Encryption: encryption(port)}, nil
}

func imapEncryption(port int) models.Encryption {
	if port == 993 {
		return models.EncryptionSSL
	}
	return models.EncryptionTLS
}

func smtpEncryption(port int) models.Encryption {
	if port == 465 {
		return models.EncryptionSSL
	}
	return models.EncryptionTLS
}

// parseLimit reads the optional count argument of list commands.
func parseLimit(text string, def, max int) int {
	parts := strings.Fields(text)
	if len(parts) < 2 {
		return def
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

type readArgs struct {
	AccountID int64
	UID       uint32
	Folder    string
}

// parseReadArgs parses "/read account_id uid [folder]". The folder may
// contain spaces.
func parseReadArgs(text string) (readArgs, error) {
	parts := strings.Fields(text)
	if len(parts) < 3 {
		return readArgs{}, errUsage
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return readArgs{}, fmt.Errorf("%w: bad account id", errUsage)
	}
	uid, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil || uid == 0 {
		return readArgs{}, fmt.Errorf("%w: bad uid", errUsage)
	}
	args := readArgs{AccountID: id, UID: uint32(uid)}
	if len(parts) > 3 {
		args.Folder = strings.Join(parts[3:], " ")
	}
	return args, nil
}

// argument returns the text after the command, or "".
func argument(text string) string {
	_, rest, _ := strings.Cut(strings.TrimSpace(text), " ")
	return strings.TrimSpace(rest)
}

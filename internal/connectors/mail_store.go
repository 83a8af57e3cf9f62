package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"quotedesk/internal"
)

// MailStore keeps raw inbound mail content-addressed on disk so a message
// can always be reparsed or audited later.
type MailStore struct {
	rawMailDir string
}

func NewMailStore(rawMailDir string) *MailStore {
	return &MailStore{rawMailDir: rawMailDir}
}

// Store writes the raw message to disk and parses it into the normalized
// inbound structure, filling in connector-side metadata the MIME envelope
// may lack.
func (s *MailStore) Store(msg internal.FetchedMailMessage) (string, internal.InboundEmail, error) {
	hashBytes := sha256.Sum256(msg.Raw)
	hash := hex.EncodeToString(hashBytes[:])

	if err := os.MkdirAll(s.rawMailDir, 0o755); err != nil {
		return "", internal.InboundEmail{}, err
	}

	rawPath := filepath.Join(s.rawMailDir, hash+".eml")
	if _, err := os.Stat(rawPath); os.IsNotExist(err) {
		if err := os.WriteFile(rawPath, msg.Raw, 0o644); err != nil {
			return "", internal.InboundEmail{}, err
		}
	}

	email, err := ParseRawEmail(msg.Raw)
	if err != nil {
		return rawPath, internal.InboundEmail{}, err
	}

	email.Provider = msg.Provider
	email.ReceivedAt = msg.ReceivedAt
	if email.Sender == "" {
		email.Sender = msg.From
	}
	if email.Subject == "" {
		email.Subject = msg.Subject
	}
	if strings.TrimSpace(email.ExternalMessageID) == "" {
		email.ExternalMessageID = msg.MessageID
	}

	return rawPath, email, nil
}

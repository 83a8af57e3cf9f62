package intake

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"quotedesk/internal"
	"quotedesk/internal/storage"
)

// Decision is the gate's verdict on an inbound message.
type Decision string

const (
	Authorized    Decision = "authorized"
	Duplicate     Decision = "duplicate"
	Unauthorized  Decision = "unauthorized"
	QuotaExceeded Decision = "quota-exceeded"
)

var (
	ErrUnauthorizedSender = errors.New("sender is not an authorized account")
	ErrInactiveAccount    = errors.New("account is inactive")
	ErrQuotaExceeded      = errors.New("daily processing quota exceeded")
)

// Admission is what the gate returns on a positive or duplicate decision.
// For Authorized, Message is a fresh row already moved to processing; for
// Duplicate it is the previously stored row.
type Admission struct {
	Decision Decision
	Account  *internal.Account
	Message  *internal.MessageRow
}

type Gate struct {
	db     *storage.DB
	logger *zap.Logger
}

func NewGate(db *storage.DB, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{db: db, logger: logger}
}

// Admit validates sender authorization, the daily quota and message
// identity before any extraction work begins. Unknown or inactive senders
// fail fast with no record created. On admission the message row is created
// pending and immediately moved to processing, so a crash mid-extraction
// leaves an inspectable non-terminal state.
func (g *Gate) Admit(email internal.InboundEmail, rawRef *string) (Admission, error) {
	sender := normalizeAddress(email.Sender)
	account, err := g.db.GetAccountByEmail(sender)
	if err != nil {
		return Admission{}, err
	}
	if account == nil {
		g.logger.Info("rejecting unknown sender", zap.String("sender", sender))
		return Admission{Decision: Unauthorized}, ErrUnauthorizedSender
	}
	if !account.Active {
		g.logger.Info("rejecting inactive account", zap.String("sender", sender))
		return Admission{Decision: Unauthorized, Account: account}, ErrInactiveAccount
	}

	admittedToday, err := g.db.CountMessagesAdmittedToday(account.ID)
	if err != nil {
		return Admission{}, err
	}
	if admittedToday >= account.DailyQuota {
		return Admission{Decision: QuotaExceeded, Account: account}, fmt.Errorf("%w: %d/%d", ErrQuotaExceeded, admittedToday, account.DailyQuota)
	}

	var externalID *string
	if trimmed := strings.TrimSpace(email.ExternalMessageID); trimmed != "" {
		externalID = &trimmed
		existing, err := g.db.GetMessageByExternalID(trimmed)
		if err != nil {
			return Admission{}, err
		}
		if existing != nil {
			return Admission{Decision: Duplicate, Account: account, Message: existing}, nil
		}
	}

	row, err := g.db.InsertMessage(account.ID, sender, email.Subject, email.ReceivedAt, externalID, len(email.Attachments), rawRef)
	if err != nil {
		return Admission{}, err
	}
	if err := g.db.UpdateMessageStatus(row.ID, internal.MessageProcessing); err != nil {
		return Admission{}, err
	}
	row.Status = internal.MessageProcessing

	return Admission{Decision: Authorized, Account: account, Message: &row}, nil
}

// normalizeAddress reduces "Jane Doe <jane@acme.example>" to the bare
// lower-cased address.
func normalizeAddress(input string) string {
	s := strings.TrimSpace(input)
	if start := strings.LastIndex(s, "<"); start >= 0 {
		if end := strings.Index(s[start:], ">"); end > 0 {
			s = s[start+1 : start+end]
		}
	}
	return strings.ToLower(strings.TrimSpace(s))
}

package internal

// MessageStatus tracks an inbound message through the pipeline.
// Once processed or failed the row is immutable except for ErrorMessage.
type MessageStatus string

const (
	MessagePending    MessageStatus = "pending"
	MessageProcessing MessageStatus = "processing"
	MessageProcessed  MessageStatus = "processed"
	MessageFailed     MessageStatus = "failed"
)

type QuoteStatus string

const (
	QuoteDraft           QuoteStatus = "draft"
	QuotePendingApproval QuoteStatus = "pending_approval"
	QuoteApproved        QuoteStatus = "approved"
	QuoteSent            QuoteStatus = "sent"
	QuoteAccepted        QuoteStatus = "accepted"
	QuoteRejected        QuoteStatus = "rejected"
)

// MatchKind tags the matching stage that produced a candidate.
type MatchKind string

const (
	MatchCompetitorXref MatchKind = "competitor_xref"
	MatchSKUExact       MatchKind = "sku_exact"
	MatchSKUPartial     MatchKind = "sku_partial"
	MatchNameOverlap    MatchKind = "name_overlap"
	MatchSemantic       MatchKind = "semantic"
	MatchFuzzy          MatchKind = "fuzzy"
)

type Account struct {
	ID         int
	Email      string
	Name       string
	Active     bool
	DailyQuota int
}

type MessageRow struct {
	ID                int
	AccountID         int
	Sender            string
	Subject           string
	ReceivedAt        string
	ExternalMessageID *string
	Status            MessageStatus
	ErrorMessage      *string
	AttachmentCount   int
	RawRef            *string
}

// ExtractedLineItem is one row pulled out of a document by the extraction
// service. Nil fields were absent from the source document. Meta keeps the
// raw extraction payload so re-matching and audits never lose the original
// signal.
type ExtractedLineItem struct {
	ID          int
	MessageID   int
	Name        *string
	Description *string
	SKU         *string
	Quantity    *float64
	UnitPrice   *float64
	TotalPrice  *float64
	Confidence  float64
	Meta        map[string]any
}

type CatalogProduct struct {
	ID        int
	AccountID int
	SKU       string
	Name      string
	Price     float64
	Cost      *float64
	Category  *string
	Supplier  *string
}

// CrossReference maps a competitor or customer SKU to an owned catalog SKU.
type CrossReference struct {
	AccountID     int
	CompetitorSKU string
	CatalogSKU    string
}

// CandidateMatch is ephemeral: computed per matching request, never
// persisted on its own.
type CandidateMatch struct {
	Product CatalogProduct `json:"product"`
	Score   float64        `json:"score"`
	Kind    MatchKind      `json:"kind"`
}

type QuoteRow struct {
	ID          int
	QuoteNumber string
	AccountID   int
	MessageID   *int
	Status      QuoteStatus
	TotalAmount float64
}

type QuoteLineItem struct {
	ID          int
	QuoteID     int
	Description string
	SKU         *string
	Quantity    float64
	UnitPrice   float64
	TotalPrice  float64
	Meta        map[string]any
}

// InboundAttachment is one decoded MIME part of an inbound message.
type InboundAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// FetchedMailMessage is what a mail connector hands back: provider
// metadata plus the raw RFC 822 bytes, parsed later into an InboundEmail.
type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

// InboundEmail is the normalized transport envelope handed to the intake
// gate. Envelope authenticity is the connector's concern, not this core's.
type InboundEmail struct {
	Provider          string
	Sender            string
	Subject           string
	BodyText          string
	ReceivedAt        string
	ExternalMessageID string
	Attachments       []InboundAttachment
	Raw               []byte
}

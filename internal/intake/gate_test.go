package intake

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"quotedesk/internal"
	"quotedesk/internal/storage"
)

func setupGate(t *testing.T) (*Gate, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewGate(db, nil), db
}

func inbound(sender, externalID string) internal.InboundEmail {
	return internal.InboundEmail{
		Provider:          "test",
		Sender:            sender,
		Subject:           "RFQ",
		ReceivedAt:        "2026-08-30T10:00:00Z",
		ExternalMessageID: externalID,
	}
}

func TestAdmitUnknownSender(t *testing.T) {
	gate, db := setupGate(t)

	admission, err := gate.Admit(inbound("stranger@nowhere.example", "<x1@nowhere>"), nil)
	if !errors.Is(err, ErrUnauthorizedSender) {
		t.Fatalf("expected ErrUnauthorizedSender, got %v", err)
	}
	if admission.Decision != Unauthorized {
		t.Fatalf("decision = %s", admission.Decision)
	}

	// A rejected sender must leave no trace.
	if row, _ := db.GetMessageByExternalID("<x1@nowhere>"); row != nil {
		t.Fatalf("message row created for unauthorized sender: %+v", row)
	}
}

func TestAdmitInactiveAccount(t *testing.T) {
	gate, db := setupGate(t)
	if _, err := db.UpsertAccount("paused@acme.example", "", false, 10); err != nil {
		t.Fatal(err)
	}

	_, err := gate.Admit(inbound("paused@acme.example", ""), nil)
	if !errors.Is(err, ErrInactiveAccount) {
		t.Fatalf("expected ErrInactiveAccount, got %v", err)
	}
}

func TestAdmitNormalizesDisplayNameAddress(t *testing.T) {
	gate, db := setupGate(t)
	if _, err := db.UpsertAccount("buyer@acme.example", "", true, 10); err != nil {
		t.Fatal(err)
	}

	admission, err := gate.Admit(inbound("Jane Buyer <Buyer@Acme.Example>", "<m1@acme>"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if admission.Decision != Authorized {
		t.Fatalf("decision = %s", admission.Decision)
	}
	if admission.Message.Sender != "buyer@acme.example" {
		t.Fatalf("sender not normalized: %q", admission.Message.Sender)
	}
	if admission.Message.Status != internal.MessageProcessing {
		t.Fatalf("admitted message status = %s, want processing", admission.Message.Status)
	}
}

func TestAdmitDuplicateExternalID(t *testing.T) {
	gate, db := setupGate(t)
	if _, err := db.UpsertAccount("buyer@acme.example", "", true, 10); err != nil {
		t.Fatal(err)
	}

	first, err := gate.Admit(inbound("buyer@acme.example", "<dup@acme>"), nil)
	if err != nil {
		t.Fatal(err)
	}

	second, err := gate.Admit(inbound("buyer@acme.example", "<dup@acme>"), nil)
	if err != nil {
		t.Fatalf("duplicate delivery must not error: %v", err)
	}
	if second.Decision != Duplicate {
		t.Fatalf("decision = %s, want duplicate", second.Decision)
	}
	if second.Message.ID != first.Message.ID {
		t.Fatalf("duplicate returned a different message: %d != %d", second.Message.ID, first.Message.ID)
	}
}

func TestAdmitQuotaExceeded(t *testing.T) {
	gate, db := setupGate(t)
	if _, err := db.UpsertAccount("busy@acme.example", "", true, 2); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if _, err := gate.Admit(inbound("busy@acme.example", fmt.Sprintf("<m%d@acme>", i)), nil); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
	}

	admission, err := gate.Admit(inbound("busy@acme.example", "<m3@acme>"), nil)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if admission.Decision != QuotaExceeded {
		t.Fatalf("decision = %s", admission.Decision)
	}
}

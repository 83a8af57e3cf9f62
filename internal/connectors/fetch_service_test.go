package connectors

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"quotedesk/internal"
	"quotedesk/internal/config"
	"quotedesk/internal/extract"
	"quotedesk/internal/pipeline"
	"quotedesk/internal/storage"
)

type fakeConnector struct {
	messages []internal.FetchedMailMessage
}

func (f *fakeConnector) FetchInbox(label string, max int) ([]internal.FetchedMailMessage, error) {
	return f.messages, nil
}

type fixedExtractor struct{ output string }

func (f *fixedExtractor) Extract(ctx context.Context, req extract.Request) (string, error) {
	return f.output, nil
}

func rawMail(from, messageID, body string) []byte {
	return []byte("From: " + from + "\r\n" +
		"Subject: RFQ\r\n" +
		"Message-ID: " + messageID + "\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" + body + "\r\n")
}

func TestMailStoreContentAddressing(t *testing.T) {
	dir := t.TempDir()
	store := NewMailStore(dir)

	msg := internal.FetchedMailMessage{
		Provider:   "test",
		MessageID:  "<fallback@acme>",
		From:       "fallback@acme.example",
		ReceivedAt: "2026-08-30T10:00:00Z",
		Raw:        rawMail("buyer@acme.example", "<s1@acme>", "quote please"),
	}

	path1, email, err := store.Store(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(path1, ".eml") {
		t.Fatalf("unexpected raw path: %s", path1)
	}
	if email.Sender != "buyer@acme.example" {
		t.Fatalf("parsed sender lost to fallback: %q", email.Sender)
	}
	if email.ExternalMessageID != "<s1@acme>" {
		t.Fatalf("parsed message id lost to fallback: %q", email.ExternalMessageID)
	}
	if email.Provider != "test" || email.ReceivedAt != "2026-08-30T10:00:00Z" {
		t.Fatalf("connector metadata not applied: %+v", email)
	}

	// Same bytes, same file.
	path2, _, err := store.Store(msg)
	if err != nil {
		t.Fatal(err)
	}
	if path1 != path2 {
		t.Fatalf("content addressing broken: %s != %s", path1, path2)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one stored file, found %d", len(entries))
	}
}

func TestFetchAndProcessClassifiesOutcomes(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.UpsertAccount("buyer@acme.example", "", true, 10); err != nil {
		t.Fatal(err)
	}

	cfg, _ := config.Load()
	extractor := &fixedExtractor{output: `{"line_items":[{"item_name":"Widget A","quantity":1,"unit_price":10,"total_price":10}]}`}
	svc := pipeline.NewService(db, extractor, nil, cfg, nil)

	connector := &fakeConnector{messages: []internal.FetchedMailMessage{
		{Provider: "test", MessageID: "<a@acme>", Raw: rawMail("buyer@acme.example", "<a@acme>", "quote widget")},
		{Provider: "test", MessageID: "<a@acme>", Raw: rawMail("buyer@acme.example", "<a@acme>", "quote widget")},
		{Provider: "test", MessageID: "<b@other>", Raw: rawMail("stranger@nowhere.example", "<b@other>", "quote widget")},
	}}

	fetch := NewFetchService(connector, t.TempDir(), svc, nil)
	result, err := fetch.FetchAndProcess(context.Background(), "INBOX", 10)
	if err != nil {
		t.Fatal(err)
	}

	if result.Fetched != 3 {
		t.Fatalf("fetched = %d", result.Fetched)
	}
	if result.Processed != 1 || result.Duplicates != 1 || result.Rejected != 1 {
		t.Fatalf("unexpected classification: %+v", result)
	}
	if len(result.Quotes) != 1 {
		t.Fatalf("expected one assembled quote, got %d", len(result.Quotes))
	}
}

package connectors

import (
	"strings"
	"testing"
)

const plainFixture = "From: Jane Buyer <buyer@acme.example>\r\n" +
	"To: quotes@supplier.example\r\n" +
	"Subject: RFQ widgets\r\n" +
	"Message-ID: <plain-1@acme.example>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Please quote:\r\n2x WID-100\r\n"

const mixedFixture = "From: buyer@acme.example\r\n" +
	"Subject: RFQ with attachment\r\n" +
	"Message-ID: <mixed-1@acme.example>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=BOUNDARY\r\n" +
	"\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"See attached order.\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: text/csv\r\n" +
	"Content-Disposition: attachment; filename=\"order.csv\"\r\n" +
	"\r\n" +
	"sku,qty\r\nWID-100,2\r\n" +
	"--BOUNDARY--\r\n"

const htmlFixture = "From: buyer@acme.example\r\n" +
	"Subject: HTML only\r\n" +
	"Message-ID: <html-1@acme.example>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<html><head><style>p{color:red}</style></head>" +
	"<body><p>Need   5x</p><p>BLT-M8 bolts</p><script>alert(1)</script></body></html>\r\n"

func TestParseRawEmailPlain(t *testing.T) {
	email, err := ParseRawEmail([]byte(plainFixture))
	if err != nil {
		t.Fatal(err)
	}
	if email.Sender != "Jane Buyer <buyer@acme.example>" {
		t.Fatalf("sender = %q", email.Sender)
	}
	if email.ExternalMessageID != "<plain-1@acme.example>" {
		t.Fatalf("message id = %q", email.ExternalMessageID)
	}
	if !strings.Contains(email.BodyText, "2x WID-100") {
		t.Fatalf("body = %q", email.BodyText)
	}
	if len(email.Attachments) != 0 {
		t.Fatalf("unexpected attachments: %+v", email.Attachments)
	}
}

func TestParseRawEmailWithAttachment(t *testing.T) {
	email, err := ParseRawEmail([]byte(mixedFixture))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(email.BodyText, "See attached order.") {
		t.Fatalf("body = %q", email.BodyText)
	}
	if len(email.Attachments) != 1 {
		t.Fatalf("attachments = %d, want 1", len(email.Attachments))
	}
	att := email.Attachments[0]
	if att.Filename != "order.csv" {
		t.Fatalf("filename = %q", att.Filename)
	}
	if !strings.Contains(string(att.Content), "WID-100,2") {
		t.Fatalf("attachment content = %q", string(att.Content))
	}
}

func TestParseRawEmailHTMLFallback(t *testing.T) {
	email, err := ParseRawEmail([]byte(htmlFixture))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(email.BodyText, "Need 5x") {
		t.Fatalf("html not reduced to text: %q", email.BodyText)
	}
	if strings.Contains(email.BodyText, "alert(1)") || strings.Contains(email.BodyText, "color:red") {
		t.Fatalf("script or style leaked into body: %q", email.BodyText)
	}
}

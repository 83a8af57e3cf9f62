package connectors

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"

	"quotedesk/internal"
)

// ParseRawEmail turns raw RFC 822 bytes into the normalized inbound
// structure the intake gate consumes. HTML-only bodies are reduced to
// plain text; attachments keep their declared content type so the
// orchestrator can classify them.
func ParseRawEmail(raw []byte) (internal.InboundEmail, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return internal.InboundEmail{}, err
	}

	body := strings.TrimSpace(env.Text)
	if body == "" && env.HTML != "" {
		body = htmlToText(env.HTML)
	}

	attachments := make([]internal.InboundAttachment, 0, len(env.Attachments))
	for _, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			filename = "attachment"
		}
		attachments = append(attachments, internal.InboundAttachment{
			Filename:    filename,
			ContentType: att.ContentType,
			Content:     att.Content,
		})
	}

	return internal.InboundEmail{
		Sender:            env.GetHeader("From"),
		Subject:           env.GetHeader("Subject"),
		BodyText:          body,
		ExternalMessageID: strings.TrimSpace(env.GetHeader("Message-ID")),
		Attachments:       attachments,
		Raw:               raw,
	}, nil
}

func htmlToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script,style").Remove()

	var sb strings.Builder
	for _, line := range strings.Split(doc.Text(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

package imap

import (
	"bytes"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"
)

// parseMessage parses a raw RFC 5322 message using go-message and extracts
// the text/plain body, text/html body, and attachments with content.
func parseMessage(raw []byte) *Message {
	msg := &Message{}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		// Unparseable MIME: treat the whole payload as plain text.
		msg.BodyText = string(raw)
		return msg
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain") && msg.BodyText == "":
				msg.BodyText = string(body)
			case strings.HasPrefix(contentType, "text/html") && msg.BodyHTML == "":
				msg.BodyHTML = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			data, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			msg.Attachments = append(msg.Attachments, AttachmentData{
				Filename: filename,
				MIMEType: contentType,
				Data:     data,
			})
		}
	}

	return msg
}

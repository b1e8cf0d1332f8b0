// Package inbox turns generated inbox items into RFC 5322 messages and
// delivers them to a lab mailbox over IMAP.
package inbox

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"cymbytes.com/cymlure/pkg/contract"
)

var (
	agoPattern       = regexp.MustCompile(`^(\d+) (minute|hour|day)s? ago$`)
	yesterdayPattern = regexp.MustCompile(`^Yesterday, (\d{1,2}):(\d{2})$`)
)

// LabelTime converts a relative timestamp label into an absolute time before
// now. Unknown labels map to now.
func LabelTime(label string, now time.Time) time.Time {
	switch label {
	case "Just now":
		return now
	case "Last week":
		return now.AddDate(0, 0, -7)
	}

	if m := agoPattern.FindStringSubmatch(label); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "minute":
			return now.Add(-time.Duration(n) * time.Minute)
		case "hour":
			return now.Add(-time.Duration(n) * time.Hour)
		case "day":
			return now.AddDate(0, 0, -n)
		}
	}

	if m := yesterdayPattern.FindStringSubmatch(label); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		y := now.AddDate(0, 0, -1)
		return time.Date(y.Year(), y.Month(), y.Day(), h, min, 0, 0, now.Location())
	}

	return now
}

// Message is one rendered item ready for APPEND.
type Message struct {
	Position int
	Date     time.Time
	Raw      []byte
}

// Render builds the RFC 5322 message for an item addressed to recipient.
func Render(item contract.InboxItem, recipient string, now time.Time) (*Message, error) {
	date := LabelTime(item.Timestamp, now)
	email := item.Email

	var h mail.Header
	h.SetDate(date)
	h.SetSubject(email.Subject)
	h.SetAddressList("From", []*mail.Address{{Name: email.FromName, Address: email.FromAddress}})
	h.SetAddressList("To", []*mail.Address{{Address: recipient}})
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}
	h.Set("Authentication-Results", email.AuthResults)
	h.Set("X-Cymlure-Variant", string(item.Variant))
	h.Set("X-Cymlure-Phishing", strconv.FormatBool(email.IsPhishing))

	var buf bytes.Buffer
	if email.Attachment == "" {
		h.SetContentType(bodyType(email.Body), map[string]string{"charset": "utf-8"})
		w, err := mail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, fmt.Errorf("create message: %w", err)
		}
		if _, err := io.WriteString(w, email.Body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return &Message{Position: item.Position, Date: date, Raw: buf.Bytes()}, nil
	}

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	var bh mail.InlineHeader
	bh.SetContentType(bodyType(email.Body), map[string]string{"charset": "utf-8"})
	bw, err := mw.CreateSingleInline(bh)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(bw, email.Body); err != nil {
		return nil, err
	}
	if err := bw.Close(); err != nil {
		return nil, err
	}

	var ah mail.AttachmentHeader
	ah.SetFilename(email.Attachment)
	ah.SetContentType(attachmentType(email.Attachment), nil)
	aw, err := mw.CreateAttachment(ah)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(aw, placeholder(email.Attachment)); err != nil {
		return nil, err
	}
	if err := aw.Close(); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	return &Message{Position: item.Position, Date: date, Raw: buf.Bytes()}, nil
}

func bodyType(body string) string {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "<") {
		return "text/html"
	}
	return "text/plain"
}

func attachmentType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// placeholder is the inert content of a simulated attachment.
func placeholder(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		return "%PDF-1.4\n% simulated attachment\n%%EOF\n"
	}
	return "simulated attachment\n"
}

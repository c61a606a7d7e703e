package inbox

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

const maxBodyBytes = 1 << 20

// Email is a decoded inbound reply
type Email struct {
	UID        uint32 // IMAP UID for move/archive; zero for webhook mail
	MessageID  string
	From       string
	FromName   string // Sender display name (e.g., "Mail Delivery System")
	To         string // All recipient addresses, comma separated
	Subject    string
	Body       string
	HTMLBody   string
	ReceivedAt time.Time
}

// Text returns the plain body, or the HTML body converted to text
func (e *Email) Text() string {
	if strings.TrimSpace(e.Body) != "" {
		return e.Body
	}
	if e.HTMLBody != "" {
		return HTMLToText(e.HTMLBody)
	}
	return ""
}

// Recipient headers searched for the reply+<id>@ address, in order
var recipientHeaders = []string{"To", "Cc", "Delivered-To", "X-Original-To"}

// ParseMessage decodes a raw RFC 5322 message
func ParseMessage(r io.Reader) (*Email, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}

	email := &Email{}
	h := mr.Header
	email.Subject, _ = h.Subject()
	email.MessageID, _ = h.MessageID()
	email.ReceivedAt, _ = h.Date()

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		email.From = from[0].Address
		email.FromName = from[0].Name
	} else {
		email.From = strings.TrimSpace(h.Get("From"))
	}

	email.To = recipients(h)
	readParts(mr, email)
	return email, nil
}

func recipients(h mail.Header) string {
	var addrs []string
	seen := make(map[string]bool)
	add := func(a string) {
		a = strings.TrimSpace(a)
		if a == "" || seen[strings.ToLower(a)] {
			return
		}
		seen[strings.ToLower(a)] = true
		addrs = append(addrs, a)
	}

	for _, key := range recipientHeaders {
		list, err := h.AddressList(key)
		if err != nil {
			add(h.Get(key))
			continue
		}
		for _, a := range list {
			add(a.Address)
		}
	}
	return strings.Join(addrs, ", ")
}

// readParts keeps the first text/plain and first text/html inline parts
func readParts(mr *mail.Reader, email *Email) {
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			break
		}
		if p == nil {
			continue
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		body, _ := io.ReadAll(io.LimitReader(p.Body, maxBodyBytes))

		if strings.HasPrefix(ct, "text/plain") && email.Body == "" {
			email.Body = string(body)
		} else if strings.HasPrefix(ct, "text/html") && email.HTMLBody == "" {
			email.HTMLBody = string(body)
		}
	}
}

var blankRuns = regexp.MustCompile(`[ \t\p{Zs}]+`)

// HTMLToText flattens an HTML reply into lines. Quoted blocks are dropped
// since they only repeat the original invitation.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, head, blockquote, .gmail_quote").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		line = strings.TrimSpace(blankRuns.ReplaceAllString(line, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

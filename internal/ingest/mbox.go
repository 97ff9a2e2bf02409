package ingest

import (
	"bufio"
	"fmt"
	"io"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/minimee-ai/recall/pkg/models"
)

// MboxParser parses Gmail mbox archives as exported by Google Takeout.
type MboxParser struct{}

var _ Parser = (*MboxParser)(nil)

// NewMboxParser creates a Gmail mbox parser.
func NewMboxParser() *MboxParser {
	return &MboxParser{}
}

// Name returns the parser name.
func (p *MboxParser) Name() string { return "gmail" }

// Parse reads an mbox archive and returns one message per mail. Mails with
// no parsable headers are skipped. Threads become conversations: replies
// group with the mail they reference, standalone mails by normalized
// subject.
func (p *MboxParser) Parse(r io.Reader, opts ParseOptions) ([]models.Message, error) {
	if opts.OwnerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}

	var msgs []models.Message
	threads := make(map[string]string) // message-id -> conversation id

	for _, raw := range splitMbox(r) {
		m, err := mail.ReadMessage(strings.NewReader(raw))
		if err != nil {
			continue
		}

		msg, messageID := p.convert(m, opts, threads)
		if msg == nil {
			continue
		}
		if messageID != "" {
			threads[messageID] = msg.ConversationID
		}
		msgs = append(msgs, *msg)
	}

	return msgs, nil
}

func (p *MboxParser) convert(m *mail.Message, opts ParseOptions, threads map[string]string) (*models.Message, string) {
	from, err := mail.ParseAddress(m.Header.Get("From"))
	if err != nil {
		return nil, ""
	}
	date, err := m.Header.Date()
	if err != nil {
		return nil, ""
	}

	var recipients []string
	if tos, err := m.Header.AddressList("To"); err == nil {
		for _, to := range tos {
			recipients = append(recipients, to.Address)
		}
	}

	subject := m.Header.Get("Subject")
	body, _ := io.ReadAll(io.LimitReader(m.Body, 256*1024))

	content := strings.TrimSpace(subject)
	if text := strings.TrimSpace(string(body)); text != "" {
		if content != "" {
			content += "\n"
		}
		content += text
	}
	if content == "" {
		return nil, ""
	}

	messageID := strings.Trim(m.Header.Get("Message-ID"), "<> ")
	conversationID := opts.ConversationID
	if conversationID == "" {
		conversationID = threadID(m.Header, subject, threads)
	}

	msg := &models.Message{
		ID:             uuid.New().String(),
		Content:        content,
		Sender:         from.Address,
		Timestamp:      date,
		Source:         models.SourceGmail,
		ConversationID: conversationID,
		OwnerID:        opts.OwnerID,
	}
	if len(recipients) == 1 {
		msg.Recipient = recipients[0]
	} else {
		msg.Recipients = recipients
	}

	return msg, messageID
}

// threadID groups a mail into a conversation: by the referenced mail's
// conversation when this is a reply, otherwise by normalized subject.
func threadID(header mail.Header, subject string, threads map[string]string) string {
	for _, field := range []string{"In-Reply-To", "References"} {
		for _, ref := range strings.Fields(header.Get(field)) {
			if conv, ok := threads[strings.Trim(ref, "<> ")]; ok {
				return conv
			}
		}
	}
	return "gmail:" + normalizeSubject(subject)
}

// normalizeSubject strips reply/forward prefixes so that replies without
// usable references still land in the same conversation.
func normalizeSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		lower := strings.ToLower(s)
		switch {
		case strings.HasPrefix(lower, "re:"):
			s = strings.TrimSpace(s[3:])
		case strings.HasPrefix(lower, "fwd:"):
			s = strings.TrimSpace(s[4:])
		case strings.HasPrefix(lower, "fw:"):
			s = strings.TrimSpace(s[3:])
		default:
			return strings.ToLower(s)
		}
	}
}

// splitMbox cuts an mbox stream into raw RFC 5322 messages at "From "
// separator lines. ">From " unquoting is applied to body lines.
func splitMbox(r io.Reader) []string {
	var messages []string
	var current strings.Builder

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	flush := func() {
		if current.Len() > 0 {
			messages = append(messages, current.String())
			current.Reset()
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "From ") {
			flush()
			continue
		}
		if strings.HasPrefix(line, ">From ") {
			line = line[1:]
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	flush()

	return messages
}

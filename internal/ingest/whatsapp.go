package ingest

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/minimee-ai/recall/pkg/models"
)

// WhatsApp export line shapes:
//
//	[25/12/2023, 10:30:45] Alice: Merry Christmas!   (iOS)
//	25/12/2023, 10:30 - Alice: Merry Christmas!      (Android)
//
// Lines that match neither continue the previous message's content.
var (
	iosLine     = regexp.MustCompile(`^\[(\d{1,2}/\d{1,2}/\d{2,4}), (\d{1,2}:\d{2}(?::\d{2})?)\] ([^:]+): (.*)$`)
	androidLine = regexp.MustCompile(`^(\d{1,2}/\d{1,2}/\d{2,4}), (\d{1,2}:\d{2}(?::\d{2})?) - ([^:]+): (.*)$`)
)

// whatsappDateLayouts cover day-first exports with two- and four-digit
// years. US-locale month-first exports are ambiguous and out of scope.
var whatsappDateLayouts = []string{
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/06 15:04:05",
	"2/1/06 15:04",
}

// WhatsAppParser parses WhatsApp chat export text files.
type WhatsAppParser struct{}

var _ Parser = (*WhatsAppParser)(nil)

// NewWhatsAppParser creates a WhatsApp export parser.
func NewWhatsAppParser() *WhatsAppParser {
	return &WhatsAppParser{}
}

// Name returns the parser name.
func (p *WhatsAppParser) Name() string { return "whatsapp" }

// Parse reads a chat export and returns its messages in file order.
// Non-message lines (encryption notices, media placeholders' surrounding
// system text) are dropped; continuation lines are appended to the
// preceding message.
func (p *WhatsAppParser) Parse(r io.Reader, opts ParseOptions) ([]models.Message, error) {
	if opts.OwnerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}

	var msgs []models.Message
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimPrefix(scanner.Text(), "‎")

		date, clock, sender, content, ok := matchLine(line)
		if !ok {
			// Continuation of the previous message.
			if len(msgs) > 0 && strings.TrimSpace(line) != "" {
				msgs[len(msgs)-1].Content += "\n" + line
			}
			continue
		}

		ts, err := parseWhatsAppTimestamp(date, clock)
		if err != nil {
			continue
		}

		msgs = append(msgs, models.Message{
			ID:        uuid.New().String(),
			Content:   content,
			Sender:    strings.TrimSpace(sender),
			Timestamp: ts,
			Source:    models.SourceWhatsApp,
			OwnerID:   opts.OwnerID,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}

	conversationID := opts.ConversationID
	if conversationID == "" {
		conversationID = deriveConversationID(msgs)
	}
	for i := range msgs {
		msgs[i].ConversationID = conversationID
	}

	return msgs, nil
}

func matchLine(line string) (date, clock, sender, content string, ok bool) {
	if m := iosLine.FindStringSubmatch(line); m != nil {
		return m[1], m[2], m[3], m[4], true
	}
	if m := androidLine.FindStringSubmatch(line); m != nil {
		return m[1], m[2], m[3], m[4], true
	}
	return "", "", "", "", false
}

func parseWhatsAppTimestamp(date, clock string) (time.Time, error) {
	raw := date + " " + clock
	for _, layout := range whatsappDateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// deriveConversationID builds a stable conversation identifier from the
// sorted participant set.
func deriveConversationID(msgs []models.Message) string {
	seen := make(map[string]struct{})
	var participants []string
	for i := range msgs {
		if _, ok := seen[msgs[i].Sender]; !ok {
			seen[msgs[i].Sender] = struct{}{}
			participants = append(participants, msgs[i].Sender)
		}
	}
	sort.Strings(participants)
	return "whatsapp:" + strings.Join(participants, "|")
}

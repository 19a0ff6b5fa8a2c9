package runtime

import (
	"time"

	"github.com/google/uuid"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

type MessageType string

const (
	MessageTypeMessage MessageType = "message"
	MessageTypeOption  MessageType = "option"
	MessageTypeInput   MessageType = "input"
)

// Message is one transcript entry. Transcripts are append-only and ordered by emission.
type Message struct {
	ID        string      `json:"id"`
	Text      string      `json:"text"`
	Sender    Sender      `json:"sender"`
	Timestamp time.Time   `json:"timestamp"`
	Type      MessageType `json:"type,omitempty"`
	Options   []string    `json:"options,omitempty"`
	StepKey   string      `json:"step_key,omitempty"`
}

// ScrollToLatest reports whether a renderer should jump to this message.
// User messages never move the reader's scroll position.
func (m Message) ScrollToLatest() bool {
	return m.Sender == SenderBot
}

func newMessage(sender Sender, text string, typ MessageType, options []string, stepKey string, now time.Time) Message {
	var opts []string
	if len(options) > 0 {
		opts = append(opts, options...)
	}
	return Message{
		ID:        uuid.New().String(),
		Text:      text,
		Sender:    sender,
		Timestamp: now,
		Type:      typ,
		Options:   opts,
		StepKey:   stepKey,
	}
}

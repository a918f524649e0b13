package models

import "time"

// AssistantName is the reserved sender name of generated replies.
const AssistantName = "Chatraj"

// SenderKind tags which variant a Sender holds.
type SenderKind string

const (
	SenderHuman     SenderKind = "human"
	SenderAssistant SenderKind = "assistant"
)

// Identity is a verified participant.
type Identity struct {
	ID   string `json:"id" bson:"id"`
	Name string `json:"name,omitempty" bson:"name,omitempty"`
}

// Sender is either a human participant or the assistant.
type Sender struct {
	Kind SenderKind `json:"kind" bson:"kind"`
	ID   string     `json:"id,omitempty" bson:"id,omitempty"`
	Name string     `json:"name,omitempty" bson:"name,omitempty"`
}

// HumanSender builds a sender for a verified participant.
func HumanSender(identity Identity) Sender {
	return Sender{Kind: SenderHuman, ID: identity.ID, Name: identity.Name}
}

// AssistantSender builds the assistant sender.
func AssistantSender() Sender {
	return Sender{Kind: SenderAssistant, Name: AssistantName}
}

// IsAssistant reports whether the message was generated.
func (s Sender) IsAssistant() bool {
	return s.Kind == SenderAssistant
}

// Reaction is one participant's emoji on a message.
type Reaction struct {
	Emoji  string `json:"emoji" bson:"emoji"`
	UserID string `json:"userId" bson:"user_id"`
}

// Message is a project chat message.
type Message struct {
	ID              string     `json:"id"`
	ConversationID  string     `json:"conversationId"`
	Sender          Sender     `json:"sender"`
	Body            string     `json:"message"`
	ParentMessageID *string    `json:"parentMessageId"`
	Reactions       []Reaction `json:"reactions"`
	DeliveredTo     []string   `json:"deliveredTo"`
	ReadBy          []string   `json:"readBy"`
	CreatedAt       time.Time  `json:"createdAt"`
	Persisted       bool       `json:"persisted"`
}

// NewMessage carries the fields a caller supplies when creating a message.
type NewMessage struct {
	ConversationID  string
	Sender          Sender
	Body            string
	ParentMessageID *string
}

// SynthesizeMessage builds a non-persisted message with the same shape as a stored one.
func SynthesizeMessage(in NewMessage, id string, createdAt time.Time) Message {
	return Message{
		ID:              id,
		ConversationID:  in.ConversationID,
		Sender:          in.Sender,
		Body:            in.Body,
		ParentMessageID: in.ParentMessageID,
		Reactions:       []Reaction{},
		DeliveredTo:     []string{},
		ReadBy:          []string{},
		CreatedAt:       createdAt,
		Persisted:       false,
	}
}

// IsDeliveredTo reports whether userID already acknowledged delivery.
func (m Message) IsDeliveredTo(userID string) bool {
	return containsID(m.DeliveredTo, userID)
}

// IsReadBy reports whether userID already acknowledged reading.
func (m Message) IsReadBy(userID string) bool {
	return containsID(m.ReadBy, userID)
}

// ApplyReaction returns the reaction list after userID reacts with emoji.
// Any earlier reaction by userID is dropped; an empty emoji only clears it.
func (m Message) ApplyReaction(userID, emoji string) []Reaction {
	out := make([]Reaction, 0, len(m.Reactions)+1)
	for _, r := range m.Reactions {
		if r.UserID != userID {
			out = append(out, r)
		}
	}
	if emoji != "" {
		out = append(out, Reaction{Emoji: emoji, UserID: userID})
	}
	return out
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

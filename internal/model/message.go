package model

import "sort"

// Message is a direct message between two users. IDs and CreatedAt are
// server-assigned; DeliveredAt is nil until the recipient confirms receipt
// and is set at most once.
type Message struct {
	ID          string `json:"id"`
	SenderID    string `json:"senderId"`
	ReceiverID  string `json:"receiverId"`
	Text        string `json:"text,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
	DeliveredAt *int64 `json:"deliveredAt,omitempty"`
}

// Valid reports whether the message carries the fields every consumer
// depends on. Pushes failing this check are dropped.
func (m *Message) Valid() bool {
	return m != nil && m.ID != "" && m.SenderID != "" && m.ReceiverID != ""
}

// OtherParty returns the conversation partner from selfID's point of view.
func (m *Message) OtherParty(selfID string) string {
	if m.SenderID == selfID {
		return m.ReceiverID
	}
	return m.SenderID
}

// Involves reports whether userID is the sender or the receiver.
func (m *Message) Involves(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// Between reports whether the message belongs to the conversation between
// a and b (in either direction).
func (m *Message) Between(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) ||
		(m.SenderID == b && m.ReceiverID == a)
}

// SortByCreation stable-sorts messages by creation time ascending, with
// the message ID as tie-break so the order is deterministic.
func SortByCreation(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt != msgs[j].CreatedAt {
			return msgs[i].CreatedAt < msgs[j].CreatedAt
		}
		return msgs[i].ID < msgs[j].ID
	})
}

// User is the public view of a registered user.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

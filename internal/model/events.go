package model

// Realtime event names shared by server and client.
const (
	EventOnlineUsers      = "onlineUsers"
	EventStartTyping      = "startTyping"
	EventStopTyping       = "stopTyping"
	EventBeginTyping      = "beginTyping"
	EventEndTyping        = "endTyping"
	EventNewMessage       = "newMessage"
	EventMessageDelivered = "messageDelivered"
	EventAck              = "ack"
)

// TypingSignal is the client→server start/stop typing payload.
type TypingSignal struct {
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
}

// TypingNotice is the server→target begin/end typing payload.
type TypingNotice struct {
	FromUserID string `json:"fromUserId"`
}

// DeliveredNotice tells the original sender that a message reached its
// recipient. ReceiverID lets the sender's client locate the conversation.
type DeliveredNotice struct {
	MessageID   string `json:"messageId"`
	ReceiverID  string `json:"receiverId"`
	DeliveredAt int64  `json:"deliveredAt"`
}

// Ack is the mandatory client response to an ack-required push.
type Ack struct {
	Status string `json:"status"`
}

// AckOK is the status value the server requires before marking delivery.
const AckOK = "ok"

package realtime

import (
	"encoding/json"

	"github.com/pigeonchat/pigeon/internal/model"
	"go.uber.org/zap"
)

// relayTyping forwards a start/stop typing signal to its target as a
// begin/end typing notice. Stateless: no persistence, no server-side
// timers; the client owns debouncing and expiry. The sender identity in
// the payload is overridden with the authenticated connection's.
func (h *Hub) relayTyping(fromUserID, event string, payload json.RawMessage) {
	var sig model.TypingSignal
	if err := json.Unmarshal(payload, &sig); err != nil {
		h.logger.Warn("malformed typing signal", zap.String("user_id", fromUserID), zap.Error(err))
		return
	}
	if sig.ToUserID == "" {
		return
	}

	out := model.EventBeginTyping
	if event == model.EventStopTyping {
		out = model.EventEndTyping
	}
	h.EmitTo(sig.ToUserID, out, model.TypingNotice{FromUserID: fromUserID})
}

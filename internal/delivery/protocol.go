package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/pigeonchat/pigeon/internal/model"
	"github.com/pigeonchat/pigeon/internal/realtime"
	"github.com/pigeonchat/pigeon/internal/store"
	"go.uber.org/zap"
)

// Channel is the slice of the realtime hub the protocol emits through.
type Channel interface {
	EmitTo(userID, event string, payload any)
	EmitToWithAck(ctx context.Context, userID, event string, payload any, timeout time.Duration) (model.Ack, error)
}

// Protocol runs the send→push→ack→confirm handshake for a message, plus
// the fetch-time stamping path. Delivery confirmation is best-effort and
// at-least-once; the client deduplicates.
type Protocol struct {
	db         *store.DB
	ch         Channel
	logger     *zap.Logger
	ackTimeout time.Duration

	now func() time.Time
}

// New creates the delivery protocol. ackTimeout bounds the wait for the
// recipient's acknowledgement.
func New(db *store.DB, ch Channel, logger *zap.Logger, ackTimeout time.Duration) *Protocol {
	return &Protocol{
		db:         db,
		ch:         ch,
		logger:     logger,
		ackTimeout: ackTimeout,
		now:        time.Now,
	}
}

// PushNew attempts live delivery of a freshly persisted message. The
// recipient being offline is terminal and silent: persistence already
// succeeded, delivery did not. On a successful ok-status acknowledgement
// the message is stamped delivered and the original sender is notified.
// Timeouts and malformed acks end the attempt with no retry.
func (p *Protocol) PushNew(ctx context.Context, msg *model.Message) {
	ack, err := p.ch.EmitToWithAck(ctx, msg.ReceiverID, model.EventNewMessage, msg, p.ackTimeout)
	if errors.Is(err, realtime.ErrNotConnected) {
		p.logger.Debug("recipient offline, no live push",
			zap.String("message_id", msg.ID), zap.String("receiver_id", msg.ReceiverID))
		return
	}
	if err != nil {
		p.logger.Info("no ack for pushed message",
			zap.String("message_id", msg.ID), zap.String("receiver_id", msg.ReceiverID), zap.Error(err))
		return
	}
	if ack.Status != model.AckOK {
		p.logger.Info("ack received with non-ok status",
			zap.String("message_id", msg.ID), zap.String("status", ack.Status))
		return
	}

	deliveredAt := p.now().UnixMilli()
	changed, err := p.db.MarkDelivered(msg.ID, deliveredAt)
	if err != nil {
		p.logger.Error("mark delivered", zap.String("message_id", msg.ID), zap.Error(err))
		return
	}
	if !changed {
		// Already stamped by the fetch path; the sender was notified then.
		return
	}

	p.ch.EmitTo(msg.SenderID, model.EventMessageDelivered, model.DeliveredNotice{
		MessageID:   msg.ID,
		ReceiverID:  msg.ReceiverID,
		DeliveredAt: deliveredAt,
	})
}

// StampFetched marks every fetched message addressed to readerID and not
// yet delivered as delivered now, notifying each sender at most once per
// message. Idempotent on repeated fetch: only a row that actually changed
// triggers a notification. Returns the messages with stamps applied.
func (p *Protocol) StampFetched(msgs []model.Message, readerID string) []model.Message {
	for i := range msgs {
		m := &msgs[i]
		if m.ReceiverID != readerID || m.DeliveredAt != nil {
			continue
		}
		deliveredAt := p.now().UnixMilli()
		changed, err := p.db.MarkDelivered(m.ID, deliveredAt)
		if err != nil {
			p.logger.Error("mark delivered on fetch", zap.String("message_id", m.ID), zap.Error(err))
			continue
		}
		if !changed {
			// Lost a race with the live-push path; surface the stamp
			// that won without re-notifying.
			if got, err := p.db.GetMessage(m.ID); err == nil && got != nil {
				m.DeliveredAt = got.DeliveredAt
			}
			continue
		}
		m.DeliveredAt = &deliveredAt
		p.ch.EmitTo(m.SenderID, model.EventMessageDelivered, model.DeliveredNotice{
			MessageID:   m.ID,
			ReceiverID:  m.ReceiverID,
			DeliveredAt: deliveredAt,
		})
	}
	return msgs
}

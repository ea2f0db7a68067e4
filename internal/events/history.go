package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"pushfanout/internal/model"
)

// Request-reply subjects for the notification history of one user.
const (
	SubjectHistoryList   = "notification.history.list"
	SubjectHistoryUnread = "notification.history.unread"
)

const historyQueryTimeout = 5 * time.Second

// HistoryReader is the read side of the notification record store.
type HistoryReader interface {
	List(ctx context.Context, userID string, limit int) (*model.NotificationListResponse, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// HistoryRequest is the body of a history request.
type HistoryRequest struct {
	UserID string `json:"user_id"`
	Limit  int    `json:"limit,omitempty"`
}

// UnreadCountReply answers SubjectHistoryUnread.
type UnreadCountReply struct {
	UnreadCount int `json:"unread_count"`
}

// ErrorReply is sent instead of a result when a request fails.
type ErrorReply struct {
	Error string `json:"error"`
}

// HistoryResponder answers history requests so clients can render the
// inbox and badge without their own database access.
type HistoryResponder struct {
	nc     *nats.Conn
	reader HistoryReader
}

func NewHistoryResponder(natsURL string, reader HistoryReader) (*HistoryResponder, error) {
	nc, err := nats.Connect(natsURL, nats.Name("push-history"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	r := &HistoryResponder{nc: nc, reader: reader}
	for _, subject := range []string{SubjectHistoryList, SubjectHistoryUnread} {
		if _, err := nc.Subscribe(subject, r.serve); err != nil {
			nc.Close()
			return nil, fmt.Errorf("subscribe %s: %w", subject, err)
		}
		log.Printf("[Events] Answering %s", subject)
	}
	return r, nil
}

func (r *HistoryResponder) serve(msg *nats.Msg) {
	reply := r.handle(msg.Subject, msg.Data)
	if msg.Reply == "" {
		return
	}
	if err := msg.Respond(reply); err != nil {
		log.Printf("[Events] Failed to reply on %s: %v", msg.Subject, err)
	}
}

func (r *HistoryResponder) handle(subject string, data []byte) []byte {
	var req HistoryRequest
	if err := json.Unmarshal(data, &req); err != nil || req.UserID == "" {
		return encodeReply(ErrorReply{Error: "user_id is required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), historyQueryTimeout)
	defer cancel()

	var result interface{}
	var err error
	switch subject {
	case SubjectHistoryList:
		result, err = r.reader.List(ctx, req.UserID, req.Limit)
	case SubjectHistoryUnread:
		var n int
		n, err = r.reader.UnreadCount(ctx, req.UserID)
		result = UnreadCountReply{UnreadCount: n}
	default:
		return encodeReply(ErrorReply{Error: "unknown subject " + subject})
	}
	if err != nil {
		log.Printf("[Events] %s for user %s failed: %v", subject, req.UserID, err)
		return encodeReply(ErrorReply{Error: err.Error()})
	}
	return encodeReply(result)
}

func encodeReply(v interface{}) []byte {
	out, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"error":"encode reply"}`)
	}
	return out
}

// Close stops answering and closes the connection.
func (r *HistoryResponder) Close() {
	if err := r.nc.Drain(); err != nil {
		log.Printf("[Events] Drain failed: %v", err)
		r.nc.Close()
	}
}

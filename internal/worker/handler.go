package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"pushfanout/internal/model"
	"pushfanout/internal/queue"
)

// NotificationSender abstracts the fan-out dispatcher so workers don't depend
// on the service package directly.
type NotificationSender interface {
	SendNotification(ctx context.Context, userID string, req model.NotificationRequest) (*model.NotificationResponse, error)
	SendToProjectMembers(ctx context.Context, projectID int64, req model.NotificationRequest) (*model.NotificationResponse, error)
}

// TokenRegistrar abstracts the device token registry.
type TokenRegistrar interface {
	RegisterToken(ctx context.Context, userID string, req model.RegisterTokenRequest) (*model.TokenRegistration, error)
	DeleteToken(ctx context.Context, userID, token string) error
	DeactivateAll(ctx context.Context, userID string) (int64, error)
}

// ReadMarker abstracts the notification record store.
type ReadMarker interface {
	MarkAsRead(ctx context.Context, userID string, ids []string) error
}

// Handler processes commands from the notification stream.
type Handler struct {
	sender  NotificationSender
	tokens  TokenRegistrar
	records ReadMarker
}

// NewHandler creates a new command handler.
func NewHandler(sender NotificationSender, tokens TokenRegistrar, records ReadMarker) *Handler {
	return &Handler{
		sender:  sender,
		tokens:  tokens,
		records: records,
	}
}

// HandleCommand routes a command to the appropriate handler based on type.
//
// Precondition failures (push disabled, no devices, unknown recipient) are
// final for the command: they are logged and reported as handled.
func (h *Handler) HandleCommand(ctx context.Context, cmd queue.Command) error {
	startTime := time.Now()
	var err error

	switch cmd.Type {
	case queue.CommandSendNotification:
		err = h.handleSend(ctx, cmd)
	case queue.CommandSendProject:
		err = h.handleSendProject(ctx, cmd)
	case queue.CommandRegisterToken:
		err = h.handleRegisterToken(ctx, cmd)
	case queue.CommandRemoveToken:
		err = h.tokens.DeleteToken(ctx, cmd.UserID, cmd.Token.Token)
	case queue.CommandDeactivateAll:
		_, err = h.tokens.DeactivateAll(ctx, cmd.UserID)
	case queue.CommandMarkRead:
		err = h.records.MarkAsRead(ctx, cmd.UserID, cmd.NotificationIDs)
	default:
		log.Printf("[Worker] Unknown command type: %s", cmd.Type)
		return fmt.Errorf("unknown command type: %s", cmd.Type)
	}

	if err != nil {
		if model.IsPrecondition(err) {
			log.Printf("[Worker] HandleCommand SKIPPED: type=%s reason=%v", cmd.Type, err)
			return nil
		}
		log.Printf("[Worker] HandleCommand FAILED: type=%s duration=%v err=%v",
			cmd.Type, time.Since(startTime), err)
		return err
	}

	log.Printf("[Worker] HandleCommand OK: type=%s duration=%v", cmd.Type, time.Since(startTime))
	return nil
}

func (h *Handler) handleSend(ctx context.Context, cmd queue.Command) error {
	resp, err := h.sender.SendNotification(ctx, cmd.UserID, *cmd.Notification)
	logDispatch("user="+cmd.UserID, resp)
	return err
}

func (h *Handler) handleSendProject(ctx context.Context, cmd queue.Command) error {
	resp, err := h.sender.SendToProjectMembers(ctx, cmd.ProjectID, *cmd.Notification)
	logDispatch(fmt.Sprintf("project=%d", cmd.ProjectID), resp)
	return err
}

func (h *Handler) handleRegisterToken(ctx context.Context, cmd queue.Command) error {
	reg, err := h.tokens.RegisterToken(ctx, cmd.UserID, *cmd.Token)
	if err != nil {
		return err
	}
	log.Printf("[Worker] RegisterToken: user=%s token_id=%s", cmd.UserID, reg.TokenID)
	return nil
}

func logDispatch(target string, resp *model.NotificationResponse) {
	if resp == nil {
		return
	}
	log.Printf("[Worker] Dispatch %s: notification=%s status=%s", target, resp.ID, resp.DeliveryStatus)
}

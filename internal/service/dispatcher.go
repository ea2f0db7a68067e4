package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"pushfanout/internal/model"
	"pushfanout/internal/repository"
)

const (
	defaultSendTimeout    = 5 * time.Second
	defaultMaxConcurrency = 8
)

// TokenRegistry is the part of DeviceTokenService the dispatcher needs.
type TokenRegistry interface {
	ListActive(ctx context.Context, userID string) ([]model.DeviceToken, error)
	Deactivate(ctx context.Context, ids []string) (int64, error)
}

// RecordKeeper is the part of RecordManager the dispatcher needs.
type RecordKeeper interface {
	Open(ctx context.Context, userID string, req model.NotificationRequest) (*model.Notification, error)
	Finalize(ctx context.Context, id string, status model.DeliveryStatus) error
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// Deliverer sends one message to one device token.
type Deliverer interface {
	SendToToken(ctx context.Context, token model.DeviceToken, msg model.PushMessage, recipientName string) (string, error)
}

// OutcomePublisher announces finished dispatches.
type OutcomePublisher interface {
	PublishDispatched(ctx context.Context, outcome model.DispatchOutcome) error
}

// DispatcherConfig bounds a single fan-out.
type DispatcherConfig struct {
	SendTimeout    time.Duration
	MaxConcurrency int
}

// Dispatcher delivers one notification to every active device of a recipient.
type Dispatcher struct {
	userRepo    repository.UserRepository
	projectRepo repository.ProjectRepository
	registry    TokenRegistry
	records     RecordKeeper
	push        Deliverer
	publisher   OutcomePublisher // Can be nil if no event bus is configured
	cfg         DispatcherConfig
}

func NewDispatcher(
	userRepo repository.UserRepository,
	projectRepo repository.ProjectRepository,
	registry TokenRegistry,
	records RecordKeeper,
	push Deliverer,
	cfg DispatcherConfig,
) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	return &Dispatcher{
		userRepo:    userRepo,
		projectRepo: projectRepo,
		registry:    registry,
		records:     records,
		push:        push,
		cfg:         cfg,
	}
}

// SetOutcomePublisher enables outcome events.
func (d *Dispatcher) SetOutcomePublisher(p OutcomePublisher) {
	d.publisher = p
}

// SendNotification delivers req to every active device of userID.
//
// Preconditions (unknown user, push disabled, no active devices) are checked
// before anything is persisted. Once the record is opened it is finalized
// exactly once, also when the dispatch panics.
//
// A dispatch where every device failed is not an error: the response carries
// delivery_status FAILED. A failed token deactivation is returned as an error
// together with the finalized response.
func (d *Dispatcher) SendNotification(ctx context.Context, userID string, req model.NotificationRequest) (*model.NotificationResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	recipient, err := d.resolveRecipient(ctx, userID)
	if err != nil {
		return nil, err
	}
	return d.dispatch(ctx, recipient, req)
}

// SendToProjectMembers notifies the freelancer assigned to a project.
// The same preconditions and fan-out as SendNotification apply.
func (d *Dispatcher) SendToProjectMembers(ctx context.Context, projectID int64, req model.NotificationRequest) (*model.NotificationResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	project, err := d.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, model.ErrProjectNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	if project.AuthorID == nil || *project.AuthorID == "" {
		return nil, model.ErrProjectAuthorMissing
	}
	if project.FreelancerID == nil || *project.FreelancerID == "" {
		return nil, model.ErrRecipientNotAssigned
	}

	recipient, err := d.resolveRecipient(ctx, *project.FreelancerID)
	if err != nil {
		return nil, err
	}
	log.Printf("[Dispatcher] Project %d: notifying freelancer %s", projectID, recipient.ID)
	return d.dispatch(ctx, recipient, req)
}

func (d *Dispatcher) resolveRecipient(ctx context.Context, userID string) (*model.Recipient, error) {
	recipient, err := d.userRepo.GetRecipient(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	return recipient, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, recipient *model.Recipient, req model.NotificationRequest) (resp *model.NotificationResponse, err error) {
	if !recipient.PushEnabled {
		return nil, model.ErrPushDisabled
	}

	tokens, err := d.registry.ListActive(ctx, recipient.ID)
	if err != nil {
		return nil, err
	}
	// Zero targets is a precondition failure: no record is opened.
	if len(tokens) == 0 {
		return nil, model.ErrNoActiveDevices
	}

	record, err := d.records.Open(ctx, recipient.ID, req)
	if err != nil {
		return nil, err
	}

	status := model.DeliveryStatusFailed
	finalized := false
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		log.Printf("[Dispatcher] Dispatch %s panicked: %v", record.ID, r)
		if !finalized {
			finalized = true
			if ferr := d.records.Finalize(ctx, record.ID, status); ferr != nil {
				log.Printf("[Dispatcher] Failed to finalize %s after panic: %v", record.ID, ferr)
			}
		}
		resp = nil
		err = fmt.Errorf("%w: notification %s: %v", model.ErrDispatchAborted, record.ID, r)
	}()

	msg := model.PushMessage{Title: req.Title, Body: req.Body, Data: req.Data}
	summary := summarize(d.fanOut(ctx, tokens, msg, recipient.FullName()))
	status = summary.Status()

	var deactivated int64
	var deactivateErr error
	if len(summary.Invalid) > 0 {
		deactivated, deactivateErr = d.registry.Deactivate(context.WithoutCancel(ctx), summary.Invalid)
		if deactivateErr != nil {
			log.Printf("[Dispatcher] Failed to deactivate %d invalid tokens for user %s: %v",
				len(summary.Invalid), recipient.ID, deactivateErr)
		}
	}

	finalized = true
	if err := d.records.Finalize(ctx, record.ID, status); err != nil {
		return nil, err
	}
	record.DeliveryStatus = status

	log.Printf("[Dispatcher] Notification %s for user %s: %s (%d delivered, %d transient, %d invalid)",
		record.ID, recipient.ID, status, len(summary.Delivered), len(summary.Transient), len(summary.Invalid))

	d.publishOutcome(ctx, record, summary, deactivated)

	if deactivateErr != nil {
		return model.NewNotificationResponse(record), deactivateErr
	}
	return model.NewNotificationResponse(record), nil
}

// fanOut sends msg to every token with bounded concurrency and waits for all
// of them. Sends run detached from the caller's cancellation; each one has
// its own timeout instead.
func (d *Dispatcher) fanOut(ctx context.Context, tokens []model.DeviceToken, msg model.PushMessage, recipientName string) []tokenOutcome {
	outcomes := make([]tokenOutcome, len(tokens))
	sendCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(min(len(tokens), d.cfg.MaxConcurrency))
	for i, token := range tokens {
		i, token := i, token
		g.Go(func() error {
			outcomes[i] = d.deliver(sendCtx, token, msg, recipientName)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (d *Dispatcher) deliver(ctx context.Context, token model.DeviceToken, msg model.PushMessage, recipientName string) (out tokenOutcome) {
	out = tokenOutcome{TokenID: token.ID, Kind: outcomeTransient}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Dispatcher] Send to token %s panicked: %v", model.TokenSuffix(token.Token), r)
			out.Kind = outcomeTransient
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	id, err := d.push.SendToToken(ctx, token, msg, recipientName)
	if err != nil {
		if IsTokenInvalid(err) {
			log.Printf("[Dispatcher] Token %s is invalid: %v", model.TokenSuffix(token.Token), err)
			out.Kind = outcomeInvalid
			return out
		}
		log.Printf("[Dispatcher] Transient failure for token %s: %v", model.TokenSuffix(token.Token), err)
		return out
	}

	log.Printf("[Dispatcher] Delivered to token %s: %s", model.TokenSuffix(token.Token), id)
	out.Kind = outcomeDelivered
	return out
}

func (d *Dispatcher) publishOutcome(ctx context.Context, record *model.Notification, summary DispatchSummary, deactivated int64) {
	if d.publisher == nil {
		return
	}
	outcome := model.DispatchOutcome{
		NotificationID: record.ID,
		UserID:         record.UserID,
		Type:           record.Type,
		Status:         record.DeliveryStatus,
		Delivered:      len(summary.Delivered),
		Failed:         len(summary.Transient) + len(summary.Invalid),
		Deactivated:    deactivated,
		DispatchedAt:   time.Now(),
	}
	ctx = context.WithoutCancel(ctx)
	if unread, err := d.records.UnreadCount(ctx, record.UserID); err != nil {
		log.Printf("[Dispatcher] Unread count for %s unavailable: %v", record.UserID, err)
	} else {
		outcome.UnreadCount = unread
	}
	if err := d.publisher.PublishDispatched(ctx, outcome); err != nil {
		log.Printf("[Dispatcher] Failed to publish outcome for %s: %v", record.ID, err)
	}
}

type outcomeKind int

const (
	outcomeTransient outcomeKind = iota
	outcomeDelivered
	outcomeInvalid
)

// tokenOutcome is the result of one send attempt.
type tokenOutcome struct {
	TokenID string
	Kind    outcomeKind
}

// DispatchSummary groups token ids by outcome. Each list is sorted, so the
// summary does not depend on the order the sends completed in.
type DispatchSummary struct {
	Delivered []string
	Transient []string
	Invalid   []string
}

// Status is SENT when at least one device accepted the message.
func (s DispatchSummary) Status() model.DeliveryStatus {
	if len(s.Delivered) > 0 {
		return model.DeliveryStatusSent
	}
	return model.DeliveryStatusFailed
}

func summarize(outcomes []tokenOutcome) DispatchSummary {
	var s DispatchSummary
	for _, o := range outcomes {
		switch o.Kind {
		case outcomeDelivered:
			s.Delivered = append(s.Delivered, o.TokenID)
		case outcomeInvalid:
			s.Invalid = append(s.Invalid, o.TokenID)
		default:
			s.Transient = append(s.Transient, o.TokenID)
		}
	}
	slices.Sort(s.Delivered)
	slices.Sort(s.Transient)
	slices.Sort(s.Invalid)
	return s
}

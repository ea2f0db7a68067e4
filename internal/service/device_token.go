package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"pushfanout/internal/model"
	"pushfanout/internal/repository"
)

// DeviceTokenService owns the active/inactive lifecycle of device tokens.
// Every write is a single atomic statement in the store, so concurrent
// dispatches for the same user need no application-level locking.
type DeviceTokenService struct {
	tokenRepo repository.DeviceTokenRepository
}

func NewDeviceTokenService(tokenRepo repository.DeviceTokenRepository) *DeviceTokenService {
	return &DeviceTokenService{tokenRepo: tokenRepo}
}

// RegisterToken stores or refreshes a device token for userID.
//
// The token value is unique, so a token already owned by another user is
// reassigned to userID (device changed hands) and reactivated.
// Calling it repeatedly with the same arguments leaves one active row.
func (s *DeviceTokenService) RegisterToken(ctx context.Context, userID string, req model.RegisterTokenRequest) (*model.TokenRegistration, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, model.ErrUserNotFound
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return nil, model.ErrInvalidToken
	}
	deviceType, err := model.ParseDeviceType(req.DeviceType)
	if err != nil {
		return nil, err
	}

	dt, err := s.tokenRepo.Upsert(ctx, userID, token, deviceType, req.DeviceInfo)
	if err != nil {
		return nil, storeError(err)
	}

	log.Printf("[DeviceToken] Registered %s token %s for user %s", deviceType, model.TokenSuffix(token), userID)
	return &model.TokenRegistration{
		Status:  "success",
		TokenID: dt.ID,
		Message: "Token registered successfully",
	}, nil
}

// storeError marks a repository failure as retryable unless the store
// rejected the user id itself.
func storeError(err error) error {
	if errors.Is(err, model.ErrUserNotFound) {
		return err
	}
	return fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
}

// ListActive returns the tokens eligible for dispatch.
func (s *DeviceTokenService) ListActive(ctx context.Context, userID string) ([]model.DeviceToken, error) {
	tokens, err := s.tokenRepo.ListActive(ctx, userID)
	if err != nil {
		return nil, storeError(err)
	}
	return tokens, nil
}

// Deactivate flips the given tokens to inactive in one batch.
// Unknown and already inactive ids are ignored; an empty set never reaches the store.
func (s *DeviceTokenService) Deactivate(ctx context.Context, ids []string) (int64, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return 0, nil
	}

	n, err := s.tokenRepo.Deactivate(ctx, unique)
	if err != nil {
		return 0, storeError(err)
	}
	log.Printf("[DeviceToken] Deactivated %d of %d invalid tokens", n, len(unique))
	return n, nil
}

// DeactivateAll deactivates every token of a user (logout everywhere, opt-out).
func (s *DeviceTokenService) DeactivateAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.tokenRepo.DeactivateAll(ctx, userID)
	if err != nil {
		return 0, storeError(err)
	}
	log.Printf("[DeviceToken] Deactivated %d tokens for user %s", n, userID)
	return n, nil
}

// DeleteToken removes a token owned by userID. A missing token is not an error.
func (s *DeviceTokenService) DeleteToken(ctx context.Context, userID, token string) error {
	deleted, err := s.tokenRepo.Delete(ctx, userID, token)
	if err != nil {
		return storeError(err)
	}
	if deleted {
		log.Printf("[DeviceToken] Deleted token %s for user %s", model.TokenSuffix(token), userID)
	}
	return nil
}

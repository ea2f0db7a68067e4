package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"pushfanout/internal/model"
)

// RecipientNamePlaceholder is replaced with the recipient's display name in push bodies.
const RecipientNamePlaceholder = "{userName}"

const apnsDeviceTokenLen = 64

// FailureKind is the classification of a failed delivery.
// It is the only signal used to decide whether a token gets deactivated.
type FailureKind int

const (
	// FailureTransient says nothing about the token (timeout, quota, unknown).
	FailureTransient FailureKind = iota
	// FailureTokenInvalid means the provider will never deliver to this token again.
	FailureTokenInvalid
)

func (k FailureKind) String() string {
	if k == FailureTokenInvalid {
		return "token_invalid"
	}
	return "transient"
}

// DeliveryError is returned by every provider adapter for a failed send.
type DeliveryError struct {
	Kind     FailureKind
	Provider string
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsTokenInvalid reports whether err is a DeliveryError of kind FailureTokenInvalid.
func IsTokenInvalid(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Kind == FailureTokenInvalid
}

// Provider is a single push transport.
// Send makes exactly one call to the provider and returns its message id.
// Failures are returned as *DeliveryError.
type Provider interface {
	Name() string
	Send(ctx context.Context, token string, msg model.PushMessage) (string, error)
}

var errNoProvider = errors.New("no push provider configured for token")

// PushClient sends one message to one device token through the matching provider.
//
// Routing:
//   - Expo push tokens ("ExponentPushToken[...]") go to Expo
//   - iOS tokens go to APNs when it is configured
//   - everything else goes to Firebase Cloud Messaging
type PushClient struct {
	fcm  Provider
	apns Provider
	expo Provider
}

// PushClientOption configures a PushClient.
type PushClientOption func(*PushClient)

// WithFCM sets the Firebase provider.
func WithFCM(p Provider) PushClientOption {
	return func(c *PushClient) { c.fcm = p }
}

// WithAPNs sets the APNs provider used for iOS tokens.
func WithAPNs(p Provider) PushClientOption {
	return func(c *PushClient) { c.apns = p }
}

// WithExpo sets the Expo provider.
func WithExpo(p Provider) PushClientOption {
	return func(c *PushClient) { c.expo = p }
}

func NewPushClient(opts ...PushClientOption) *PushClient {
	c := &PushClient{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendToToken personalizes the body for the recipient and sends it to one token.
// No retries happen here; the returned error is always a *DeliveryError.
func (c *PushClient) SendToToken(ctx context.Context, token model.DeviceToken, msg model.PushMessage, recipientName string) (string, error) {
	msg.Body = PersonalizeBody(msg.Body, recipientName)

	p := c.providerFor(token)
	if p == nil {
		return "", &DeliveryError{Kind: FailureTransient, Provider: "none", Err: errNoProvider}
	}

	id, err := p.Send(ctx, token.Token, msg)
	if err != nil {
		var de *DeliveryError
		if !errors.As(err, &de) {
			de = &DeliveryError{Kind: FailureTransient, Provider: p.Name(), Err: err}
		}
		return "", de
	}
	return id, nil
}

func (c *PushClient) providerFor(token model.DeviceToken) Provider {
	switch {
	case IsExpoToken(token.Token):
		return c.expo
	case token.DeviceType == model.DeviceTypeIOS && c.apns != nil && IsAPNsDeviceToken(token.Token):
		return c.apns
	default:
		return c.fcm
	}
}

// IsAPNsDeviceToken reports whether token is a native APNs device token
// (32 bytes, hex encoded). iOS apps on the Firebase SDK register FCM
// registration tokens instead; APNs rejects those as BadDeviceToken.
func IsAPNsDeviceToken(token string) bool {
	if len(token) != apnsDeviceTokenLen {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}

// PersonalizeBody substitutes the recipient name placeholder.
func PersonalizeBody(body, recipientName string) string {
	return strings.ReplaceAll(body, RecipientNamePlaceholder, recipientName)
}

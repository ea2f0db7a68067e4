package service

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"pushfanout/internal/model"
)

type apnsPusher interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// APNsClient delivers to native iOS device tokens through Apple's HTTP/2 API.
type APNsClient struct {
	client apnsPusher
	topic  string
}

// APNsCredentials holds the token-based (.p8) auth settings.
type APNsCredentials struct {
	AuthKeyPath string
	KeyID       string
	TeamID      string
	Topic       string
	Production  bool
}

// NewAPNsClient creates an APNs client using token-based authentication.
func NewAPNsClient(creds APNsCredentials) (*APNsClient, error) {
	authKey, err := token.AuthKeyFromFile(creds.AuthKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read apns auth key: %w", err)
	}

	authToken := &token.Token{
		AuthKey: authKey,
		KeyID:   creds.KeyID,
		TeamID:  creds.TeamID,
	}

	client := apns2.NewTokenClient(authToken)
	if creds.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	log.Printf("[APNs] Initialized for topic %s (production=%t)", creds.Topic, creds.Production)
	return &APNsClient{client: client, topic: creds.Topic}, nil
}

func (c *APNsClient) Name() string { return "apns" }

// Send pushes one alert notification to one device token.
func (c *APNsClient) Send(ctx context.Context, deviceToken string, msg model.PushMessage) (string, error) {
	res, err := c.client.PushWithContext(ctx, buildAPNsNotification(deviceToken, c.topic, msg))
	if err != nil {
		return "", &DeliveryError{Kind: FailureTransient, Provider: c.Name(), Err: err}
	}
	if !res.Sent() {
		return "", &DeliveryError{
			Kind:     classifyAPNsResponse(res.StatusCode, res.Reason),
			Provider: c.Name(),
			Err:      fmt.Errorf("apns rejected notification: status=%d reason=%s", res.StatusCode, res.Reason),
		}
	}
	log.Printf("[APNs] Sent to token %s: %s", model.TokenSuffix(deviceToken), res.ApnsID)
	return res.ApnsID, nil
}

func buildAPNsNotification(deviceToken, topic string, msg model.PushMessage) *apns2.Notification {
	p := payload.NewPayload().
		AlertTitle(msg.Title).
		AlertBody(msg.Body).
		Sound("default")
	for k, v := range msg.Data {
		p.Custom(k, v)
	}

	return &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       topic,
		PushType:    apns2.PushTypeAlert,
		Priority:    apns2.PriorityHigh,
		Payload:     p,
	}
}

// classifyAPNsResponse maps a rejected APNs response onto a FailureKind.
// 410 Gone is Apple's answer for a token that is no longer active for the topic.
func classifyAPNsResponse(statusCode int, reason string) FailureKind {
	if statusCode == http.StatusGone {
		return FailureTokenInvalid
	}
	switch reason {
	case apns2.ReasonUnregistered, apns2.ReasonBadDeviceToken, apns2.ReasonDeviceTokenNotForTopic:
		return FailureTokenInvalid
	}
	return FailureTransient
}

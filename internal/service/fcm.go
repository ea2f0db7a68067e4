package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"pushfanout/internal/model"
)

// WebPushPresentation is the browser notification block attached to FCM messages.
type WebPushPresentation struct {
	Icon               string
	Badge              string
	Tag                string
	RequireInteraction bool
}

// fcmSender is the part of *messaging.Client used here.
type fcmSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMClient delivers to Firebase Cloud Messaging registration tokens
// (web, android, desktop and iOS when APNs is not configured directly).
type FCMClient struct {
	client  fcmSender
	webPush WebPushPresentation
}

// FCMCredentials selects how the Firebase app authenticates.
// CredentialsFile wins over the inline service account fields.
type FCMCredentials struct {
	ProjectID       string
	ClientEmail     string
	PrivateKey      string
	CredentialsFile string
}

// NewFCMClient creates a new FCM client.
//
// The private key in .env has literal "\n" sequences; they are turned into real
// newlines because the Firebase SDK expects a PEM block.
func NewFCMClient(ctx context.Context, creds FCMCredentials, webPush WebPushPresentation) (*FCMClient, error) {
	var opt option.ClientOption
	if creds.CredentialsFile != "" {
		opt = option.WithCredentialsFile(creds.CredentialsFile)
	} else {
		privateKey := strings.ReplaceAll(creds.PrivateKey, "\\n", "\n")
		credsJSON := fmt.Sprintf(`{
			"type": "service_account",
			"project_id": %q,
			"private_key": %q,
			"client_email": %q,
			"token_uri": "https://oauth2.googleapis.com/token"
		}`, creds.ProjectID, privateKey, creds.ClientEmail)
		opt = option.WithCredentialsJSON([]byte(credsJSON))
	}

	var appCfg *firebase.Config
	if creds.ProjectID != "" {
		appCfg = &firebase.Config{ProjectID: creds.ProjectID}
	}

	app, err := firebase.NewApp(ctx, appCfg, opt)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get messaging client: %w", err)
	}

	log.Printf("[FCM] Initialized for project: %s", creds.ProjectID)
	return &FCMClient{client: client, webPush: webPush}, nil
}

func (c *FCMClient) Name() string { return "fcm" }

// Send delivers one message to one registration token.
func (c *FCMClient) Send(ctx context.Context, token string, msg model.PushMessage) (string, error) {
	id, err := c.client.Send(ctx, buildFCMMessage(token, msg, c.webPush))
	if err != nil {
		return "", &DeliveryError{Kind: classifyFCMError(err), Provider: c.Name(), Err: err}
	}
	log.Printf("[FCM] Sent to token %s: %s", model.TokenSuffix(token), id)
	return id, nil
}

func buildFCMMessage(token string, msg model.PushMessage, webPush WebPushPresentation) *messaging.Message {
	message := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound: "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Title:              msg.Title,
				Body:               msg.Body,
				Icon:               webPush.Icon,
				Badge:              webPush.Badge,
				Tag:                webPush.Tag,
				RequireInteraction: webPush.RequireInteraction,
			},
		},
	}

	if len(msg.Data) > 0 {
		message.Data = msg.Data
	}
	return message
}

// fcmInvalidTokenMarkers are error texts FCM uses for dead registration tokens,
// covering both the legacy and the v1 API wording.
var fcmInvalidTokenMarkers = []string{
	"registration-token-not-registered",
	"invalid-registration-token",
	"reason: unregistered",
	"not a valid fcm registration token",
}

// classifyFCMError maps an FCM send error onto a FailureKind.
// The typed error code is checked first; the text markers cover errors that
// lost their code on the way (wrapped or proxied).
func classifyFCMError(err error) FailureKind {
	if err == nil {
		return FailureTransient
	}
	if messaging.IsUnregistered(err) {
		return FailureTokenInvalid
	}
	text := strings.ToLower(err.Error())
	for _, marker := range fcmInvalidTokenMarkers {
		if strings.Contains(text, marker) {
			return FailureTokenInvalid
		}
	}
	return FailureTransient
}

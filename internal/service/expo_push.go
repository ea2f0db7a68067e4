package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"pushfanout/internal/model"
)

// ExpoPushClient sends push notifications via Expo's Push API.
//
// React Native apps built with Expo receive an Expo push token
// ("ExponentPushToken[xxx]") instead of a raw FCM/APNs token.
// Expo relays the message to FCM or APNs itself.
type ExpoPushClient struct {
	httpClient *http.Client
	endpoint   string
}

// ExpoPushMessage is the payload for Expo's Push API.
type ExpoPushMessage struct {
	To       []string          `json:"to"`                 // Expo push tokens
	Title    string            `json:"title,omitempty"`    // Notification title
	Body     string            `json:"body"`               // Notification body (required)
	Data     map[string]string `json:"data,omitempty"`     // Custom data payload
	Sound    string            `json:"sound,omitempty"`    // "default" or custom sound
	Priority string            `json:"priority,omitempty"` // "default", "normal", "high"
}

// ExpoPushResponse is the response from Expo's API.
type ExpoPushResponse struct {
	Data []ExpoPushTicket `json:"data"`
}

type ExpoPushTicket struct {
	Status  string `json:"status"` // "ok" or "error"
	ID      string `json:"id"`     // Ticket ID for receipt checking
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"` // "DeviceNotRegistered", "MessageTooBig", etc.
	} `json:"details,omitempty"`
}

const expoPushURL = "https://exp.host/--/api/v2/push/send"

// expoDeviceNotRegistered is the ticket error for an uninstalled app or rotated token.
const expoDeviceNotRegistered = "DeviceNotRegistered"

var errEmptyExpoResponse = errors.New("expo returned no push ticket")

// NewExpoPushClient creates a new Expo Push client.
// Expo Push doesn't require any credentials.
func NewExpoPushClient() *ExpoPushClient {
	return NewExpoPushClientWithEndpoint(expoPushURL)
}

// NewExpoPushClientWithEndpoint creates a client posting to a custom endpoint.
func NewExpoPushClientWithEndpoint(endpoint string) *ExpoPushClient {
	return &ExpoPushClient{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		endpoint: endpoint,
	}
}

// IsExpoToken reports whether token was issued by Expo rather than FCM/APNs.
func IsExpoToken(token string) bool {
	return strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")
}

func (c *ExpoPushClient) Name() string { return "expo" }

// Send posts one message for one Expo push token and inspects its ticket.
func (c *ExpoPushClient) Send(ctx context.Context, token string, msg model.PushMessage) (string, error) {
	message := ExpoPushMessage{
		To:       []string{token},
		Title:    msg.Title,
		Body:     msg.Body,
		Sound:    "default",
		Priority: "high",
		Data:     msg.Data,
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return "", c.transient(fmt.Errorf("marshal message: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", c.transient(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.transient(fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", c.transient(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return "", c.transient(fmt.Errorf("expo api error: status=%d body=%s", resp.StatusCode, string(respBody)))
	}

	var pushResp ExpoPushResponse
	if err := json.Unmarshal(respBody, &pushResp); err != nil {
		return "", c.transient(fmt.Errorf("parse response: %w", err))
	}
	if len(pushResp.Data) == 0 {
		return "", c.transient(errEmptyExpoResponse)
	}

	ticket := pushResp.Data[0]
	if ticket.Status != "ok" {
		return "", &DeliveryError{
			Kind:     classifyExpoTicket(ticket),
			Provider: c.Name(),
			Err:      fmt.Errorf("expo ticket error: %s (%s)", ticket.Message, ticket.Details.Error),
		}
	}

	log.Printf("[ExpoPush] Sent to token %s: ticket %s", model.TokenSuffix(token), ticket.ID)
	return ticket.ID, nil
}

func (c *ExpoPushClient) transient(err error) error {
	return &DeliveryError{Kind: FailureTransient, Provider: c.Name(), Err: err}
}

// classifyExpoTicket maps an error ticket onto a FailureKind.
func classifyExpoTicket(ticket ExpoPushTicket) FailureKind {
	if ticket.Details.Error == expoDeviceNotRegistered {
		return FailureTokenInvalid
	}
	return FailureTransient
}

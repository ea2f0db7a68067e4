package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sideshow/apns2"

	"pushfanout/internal/model"
)

// =============================================================================
// ROUTING
// =============================================================================

const nativeAPNsToken = "740f4707bebcf74f9b7c25d48e3358945f6aa01da5ddb387462c7eaf61bb78ad"

func TestPushClient_RoutesByToken(t *testing.T) {
	fcm := &mockProvider{name: "fcm"}
	apns := &mockProvider{name: "apns"}
	expo := &mockProvider{name: "expo"}
	client := NewPushClient(WithFCM(fcm), WithAPNs(apns), WithExpo(expo))

	tests := []struct {
		name  string
		token model.DeviceToken
		want  *mockProvider
	}{
		{"web goes to fcm", model.DeviceToken{Token: "web-token", DeviceType: model.DeviceTypeWeb}, fcm},
		{"android goes to fcm", model.DeviceToken{Token: "android-token", DeviceType: model.DeviceTypeAndroid}, fcm},
		{"desktop goes to fcm", model.DeviceToken{Token: "desktop-token", DeviceType: model.DeviceTypeDesktop}, fcm},
		{"native ios token goes to apns", model.DeviceToken{Token: nativeAPNsToken, DeviceType: model.DeviceTypeIOS}, apns},
		{"firebase ios token goes to fcm", model.DeviceToken{Token: "fGx1:APA91bHun4MxP5egoKMwt2KZFBaFUH-1RYqx", DeviceType: model.DeviceTypeIOS}, fcm},
		{"64 chars but not hex goes to fcm", model.DeviceToken{Token: strings.Repeat("z", 64), DeviceType: model.DeviceTypeIOS}, fcm},
		{"apns-shaped android token goes to fcm", model.DeviceToken{Token: nativeAPNsToken, DeviceType: model.DeviceTypeAndroid}, fcm},
		{"expo token goes to expo", model.DeviceToken{Token: "ExponentPushToken[abc]", DeviceType: model.DeviceTypeIOS}, expo},
		{"new expo prefix", model.DeviceToken{Token: "ExpoPushToken[abc]", DeviceType: model.DeviceTypeAndroid}, expo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.want.sendCount()
			if _, err := client.SendToToken(context.Background(), tt.token, model.PushMessage{Title: "t", Body: "b"}, "Jane"); err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			if tt.want.sendCount() != before+1 {
				t.Errorf("expected %s to receive the send", tt.want.name)
			}
		})
	}
}

// A Firebase-issued iOS token must never reach APNs: APNs would answer
// BadDeviceToken and the token would be deactivated while still valid.
func TestPushClient_FirebaseIOSTokenNotDeactivatedByAPNs(t *testing.T) {
	fcm := &mockProvider{name: "fcm"}
	apns := &mockProvider{name: "apns", sendFn: func(ctx context.Context, token string, msg model.PushMessage) (string, error) {
		return "", &DeliveryError{Kind: FailureTokenInvalid, Provider: "apns", Err: errors.New("reason=BadDeviceToken")}
	}}
	client := NewPushClient(WithFCM(fcm), WithAPNs(apns))

	_, err := client.SendToToken(context.Background(), model.DeviceToken{Token: "fGx1:APA91bHun4MxP5egoKMwt2KZFBaFUH", DeviceType: model.DeviceTypeIOS}, model.PushMessage{}, "")

	if err != nil {
		t.Fatalf("expected delivery through fcm, got: %v", err)
	}
	if apns.sendCount() != 0 {
		t.Error("firebase token was routed to apns")
	}
	if fcm.sendCount() != 1 {
		t.Errorf("fcm sends = %d, want 1", fcm.sendCount())
	}
}

func TestIsAPNsDeviceToken(t *testing.T) {
	tests := []struct {
		token string
		want  bool
	}{
		{nativeAPNsToken, true},
		{strings.ToUpper(nativeAPNsToken), true},
		{nativeAPNsToken[:63], false},
		{nativeAPNsToken + "00", false},
		{"fGx1:APA91bHun4MxP5egoKMwt2KZFBaFUH", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsAPNsDeviceToken(tt.token); got != tt.want {
			t.Errorf("IsAPNsDeviceToken(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}
}

func TestPushClient_IOSFallsBackToFCM(t *testing.T) {
	fcm := &mockProvider{name: "fcm"}
	client := NewPushClient(WithFCM(fcm))

	if _, err := client.SendToToken(context.Background(), model.DeviceToken{Token: nativeAPNsToken, DeviceType: model.DeviceTypeIOS}, model.PushMessage{}, ""); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if fcm.sendCount() != 1 {
		t.Error("ios token should go to fcm when apns is not configured")
	}
}

func TestPushClient_MissingProvider_IsTransient(t *testing.T) {
	client := NewPushClient()

	_, err := client.SendToToken(context.Background(), model.DeviceToken{Token: "web-token", DeviceType: model.DeviceTypeWeb}, model.PushMessage{}, "")

	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DeliveryError, got %T", err)
	}
	if de.Kind != FailureTransient {
		t.Errorf("kind = %s, want transient", de.Kind)
	}
}

func TestPushClient_WrapsUntypedErrorsAsTransient(t *testing.T) {
	fcm := &mockProvider{name: "fcm", sendFn: func(ctx context.Context, token string, msg model.PushMessage) (string, error) {
		return "", errors.New("invalid-registration-token")
	}}
	client := NewPushClient(WithFCM(fcm))

	_, err := client.SendToToken(context.Background(), model.DeviceToken{Token: "x"}, model.PushMessage{}, "")

	if IsTokenInvalid(err) {
		t.Error("only adapters classify; an untyped error must stay transient")
	}
}

func TestPushClient_PersonalizesBody(t *testing.T) {
	fcm := &mockProvider{name: "fcm"}
	client := NewPushClient(WithFCM(fcm))

	msg := model.PushMessage{Title: "Hello {userName}", Body: "Welcome back, {userName}!"}
	if _, err := client.SendToToken(context.Background(), model.DeviceToken{Token: "x"}, msg, "Jane Doe"); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	got := fcm.sends[0].Msg
	if got.Body != "Welcome back, Jane Doe!" {
		t.Errorf("body = %q", got.Body)
	}
	if got.Title != "Hello {userName}" {
		t.Errorf("title should not be personalized, got %q", got.Title)
	}
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

func TestClassifyFCMError(t *testing.T) {
	tests := []struct {
		err  error
		want FailureKind
	}{
		{errors.New("messaging/registration-token-not-registered"), FailureTokenInvalid},
		{errors.New("messaging/invalid-registration-token"), FailureTokenInvalid},
		{errors.New("http error status: 404; reason: UNREGISTERED"), FailureTokenInvalid},
		{errors.New("The registration token is not a valid FCM registration token"), FailureTokenInvalid},
		{fmt.Errorf("send: %w", errors.New("invalid-registration-token")), FailureTokenInvalid},
		{errors.New("http error status: 503; reason: unavailable"), FailureTransient},
		{errors.New("quota exceeded"), FailureTransient},
		{errors.New("topic subscriber unregistered from analytics"), FailureTransient},
		{errors.New("proxy: upstream unregistered, retry later"), FailureTransient},
		{context.DeadlineExceeded, FailureTransient},
		{nil, FailureTransient},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			if got := classifyFCMError(tt.err); got != tt.want {
				t.Errorf("classifyFCMError() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifyAPNsResponse(t *testing.T) {
	tests := []struct {
		status int
		reason string
		want   FailureKind
	}{
		{http.StatusGone, apns2.ReasonUnregistered, FailureTokenInvalid},
		{http.StatusBadRequest, apns2.ReasonBadDeviceToken, FailureTokenInvalid},
		{http.StatusBadRequest, apns2.ReasonDeviceTokenNotForTopic, FailureTokenInvalid},
		{http.StatusTooManyRequests, apns2.ReasonTooManyRequests, FailureTransient},
		{http.StatusServiceUnavailable, apns2.ReasonServiceUnavailable, FailureTransient},
		{http.StatusForbidden, apns2.ReasonExpiredProviderToken, FailureTransient},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			if got := classifyAPNsResponse(tt.status, tt.reason); got != tt.want {
				t.Errorf("classifyAPNsResponse(%d, %s) = %s, want %s", tt.status, tt.reason, got, tt.want)
			}
		})
	}
}

type fakeAPNsPusher struct {
	res *apns2.Response
	err error
	got *apns2.Notification
}

func (f *fakeAPNsPusher) PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error) {
	f.got = n
	return f.res, f.err
}

func TestAPNsClient_Send(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		pusher := &fakeAPNsPusher{res: &apns2.Response{StatusCode: http.StatusOK, ApnsID: "apns-1"}}
		client := &APNsClient{client: pusher, topic: "com.example.app"}

		id, err := client.Send(context.Background(), "device", model.PushMessage{Title: "t", Body: "b"})
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if id != "apns-1" {
			t.Errorf("id = %q, want apns-1", id)
		}
		if pusher.got.Topic != "com.example.app" || pusher.got.DeviceToken != "device" {
			t.Errorf("notification = %+v", pusher.got)
		}
	})

	t.Run("unregistered", func(t *testing.T) {
		pusher := &fakeAPNsPusher{res: &apns2.Response{StatusCode: http.StatusGone, Reason: apns2.ReasonUnregistered}}
		client := &APNsClient{client: pusher, topic: "com.example.app"}

		_, err := client.Send(context.Background(), "device", model.PushMessage{})
		if !IsTokenInvalid(err) {
			t.Errorf("expected token invalid, got: %v", err)
		}
	})

	t.Run("network error", func(t *testing.T) {
		pusher := &fakeAPNsPusher{err: errors.New("connection reset by peer")}
		client := &APNsClient{client: pusher, topic: "com.example.app"}

		_, err := client.Send(context.Background(), "device", model.PushMessage{})
		if err == nil || IsTokenInvalid(err) {
			t.Errorf("expected transient error, got: %v", err)
		}
	})
}

// =============================================================================
// EXPO
// =============================================================================

func newExpoServer(t *testing.T, status int, tickets ...ExpoPushTicket) (*httptest.Server, *ExpoPushMessage) {
	t.Helper()
	var received ExpoPushMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(ExpoPushResponse{Data: tickets})
	}))
	t.Cleanup(srv.Close)
	return srv, &received
}

func TestExpoPushClient_Send(t *testing.T) {
	t.Run("ok ticket", func(t *testing.T) {
		srv, received := newExpoServer(t, http.StatusOK, ExpoPushTicket{Status: "ok", ID: "ticket-1"})
		client := NewExpoPushClientWithEndpoint(srv.URL)

		id, err := client.Send(context.Background(), "ExponentPushToken[abc]", model.PushMessage{
			Title: "t", Body: "b", Data: map[string]string{"clickAction": "/x"},
		})
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if id != "ticket-1" {
			t.Errorf("id = %q, want ticket-1", id)
		}
		if len(received.To) != 1 || received.To[0] != "ExponentPushToken[abc]" {
			t.Errorf("to = %v", received.To)
		}
		if received.Data["clickAction"] != "/x" {
			t.Errorf("data = %v", received.Data)
		}
	})

	t.Run("device not registered", func(t *testing.T) {
		ticket := ExpoPushTicket{Status: "error", Message: "not a registered push notification recipient"}
		ticket.Details.Error = "DeviceNotRegistered"
		srv, _ := newExpoServer(t, http.StatusOK, ticket)
		client := NewExpoPushClientWithEndpoint(srv.URL)

		_, err := client.Send(context.Background(), "ExponentPushToken[abc]", model.PushMessage{Body: "b"})
		if !IsTokenInvalid(err) {
			t.Errorf("expected token invalid, got: %v", err)
		}
	})

	t.Run("message too big", func(t *testing.T) {
		ticket := ExpoPushTicket{Status: "error"}
		ticket.Details.Error = "MessageTooBig"
		srv, _ := newExpoServer(t, http.StatusOK, ticket)
		client := NewExpoPushClientWithEndpoint(srv.URL)

		_, err := client.Send(context.Background(), "ExponentPushToken[abc]", model.PushMessage{Body: "b"})
		if err == nil || IsTokenInvalid(err) {
			t.Errorf("expected transient error, got: %v", err)
		}
	})

	t.Run("server error", func(t *testing.T) {
		srv, _ := newExpoServer(t, http.StatusInternalServerError)
		client := NewExpoPushClientWithEndpoint(srv.URL)

		_, err := client.Send(context.Background(), "ExponentPushToken[abc]", model.PushMessage{Body: "b"})
		if err == nil || IsTokenInvalid(err) {
			t.Errorf("expected transient error, got: %v", err)
		}
	})
}

func TestIsExpoToken(t *testing.T) {
	tests := map[string]bool{
		"ExponentPushToken[xxxxxxxxxxxxxxxxxxxxxx]": true,
		"ExpoPushToken[xxxxxxxxxxxxxxxxxxxxxx]":     true,
		"fcm:APA91bHun4MxP5egoKMwt2KZFBaFUH":        false,
		"":                                          false,
	}
	for token, want := range tests {
		if got := IsExpoToken(token); got != want {
			t.Errorf("IsExpoToken(%q) = %v, want %v", token, got, want)
		}
	}
}

func TestBuildFCMMessage(t *testing.T) {
	web := WebPushPresentation{Icon: "/icon.png", Badge: "/badge.png", Tag: "user-notification"}

	msg := buildFCMMessage("tok", model.PushMessage{Title: "t", Body: "b", Data: map[string]string{"k": "v"}}, web)

	if msg.Token != "tok" || msg.Notification.Title != "t" || msg.Notification.Body != "b" {
		t.Errorf("message = %+v", msg)
	}
	if msg.Data["k"] != "v" {
		t.Errorf("data = %v", msg.Data)
	}
	if msg.Webpush.Notification.Icon != "/icon.png" || msg.Webpush.Notification.Tag != "user-notification" {
		t.Errorf("webpush = %+v", msg.Webpush.Notification)
	}
	if msg.Android.Priority != "high" {
		t.Errorf("android priority = %q, want high", msg.Android.Priority)
	}

	empty := buildFCMMessage("tok", model.PushMessage{Title: "t", Body: "b"}, web)
	if empty.Data != nil {
		t.Errorf("empty data should be omitted, got %v", empty.Data)
	}
}

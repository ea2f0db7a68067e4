package model

import "errors"

var (
	// ErrUserNotFound is returned when the recipient does not exist
	ErrUserNotFound = errors.New("user not found")

	// ErrPushDisabled is returned when the recipient opted out of push notifications
	ErrPushDisabled = errors.New("push notifications are disabled for user")

	// ErrNoActiveDevices is returned when the recipient has no active device token
	ErrNoActiveDevices = errors.New("no active device tokens found")

	// ErrProjectNotFound is returned when a project cannot be found
	ErrProjectNotFound = errors.New("project not found")

	// ErrProjectAuthorMissing is returned when a project has no author
	ErrProjectAuthorMissing = errors.New("project author not found")

	// ErrRecipientNotAssigned is returned when a project has no assigned freelancer
	ErrRecipientNotAssigned = errors.New("project has no assigned freelancer")

	// ErrInvalidRequest is returned for notifications missing title, body or a known type
	ErrInvalidRequest = errors.New("invalid notification request")

	// ErrInvalidDeviceType is returned for device types outside web/android/ios/desktop
	ErrInvalidDeviceType = errors.New("invalid device type")

	// ErrInvalidToken is returned when a registration carries no token value
	ErrInvalidToken = errors.New("device token is required")

	// ErrNotificationNotFound is returned when a notification record cannot be found
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrStoreUnavailable wraps store failures that the caller may retry
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrDispatchAborted is returned when a dispatch stopped on an unexpected failure
	ErrDispatchAborted = errors.New("dispatch aborted")
)

// IsPrecondition reports whether err was raised before any delivery was attempted.
// Precondition errors are never retried.
func IsPrecondition(err error) bool {
	for _, target := range []error{
		ErrUserNotFound, ErrPushDisabled, ErrNoActiveDevices,
		ErrProjectNotFound, ErrProjectAuthorMissing, ErrRecipientNotAssigned,
		ErrInvalidRequest, ErrInvalidDeviceType, ErrInvalidToken,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

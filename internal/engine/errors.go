package engine

import "errors"

var (
	ErrDuplicateCamera = errors.New("camera already registered")
	ErrMissingIdentity = errors.New("camera did not report a name")
	ErrCameraNotFound  = errors.New("camera not found in registry")
	ErrSessionNotFound = errors.New("no session registered for vendor")

	// ErrVendorCommunication marks transient vendor API failures. Vendor
	// adapters wrap retryable errors with it; the scheduler retries these
	// before degrading the camera.
	ErrVendorCommunication = errors.New("vendor communication error")
)

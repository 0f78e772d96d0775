package audio

import "errors"

// Capture error taxonomy. ErrDeviceUnavailable is distinct from ErrReadFailed
// so the caller can trigger recovery instead of looping on a dead device.
var (
	ErrInitFailed        = errors.New("audio: initialization failed")
	ErrNoInputDevice     = errors.New("audio: no input device")
	ErrDeviceUnavailable = errors.New("audio: device unavailable")
	ErrStreamOpenFailed  = errors.New("audio: stream open failed")
	ErrStreamStartFailed = errors.New("audio: stream start failed")
	ErrReadFailed        = errors.New("audio: read failed")
	ErrDisposed          = errors.New("audio: capture disposed")
)

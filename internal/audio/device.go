package audio

import "strings"

// Device describes an input-capable audio endpoint.
type Device struct {
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
	IsDefault         bool

	// handle is the host backend's native reference for this device.
	handle any
}

// Resolution describes how a requested device name was resolved.
type Resolution struct {
	Device       Device
	FellBack     bool
	RequestedFor string
}

// resolveDevice maps a requested name onto the enumerated devices: exact match
// first, then case-insensitive substring match, then the smart default. The
// FellBack flag is set whenever a non-empty request could not be honored.
func resolveDevice(devices []Device, requested string) (Resolution, error) {
	if requested != "" {
		for _, d := range devices {
			if d.MaxInputChannels > 0 && d.Name == requested {
				return Resolution{Device: d, RequestedFor: requested}, nil
			}
		}
		lower := strings.ToLower(requested)
		for _, d := range devices {
			if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), lower) {
				return Resolution{Device: d, RequestedFor: requested}, nil
			}
		}
	}

	def, ok := smartDefault(devices)
	if !ok {
		return Resolution{}, ErrNoInputDevice
	}
	return Resolution{
		Device:       def,
		FellBack:     requested != "",
		RequestedFor: requested,
	}, nil
}

// smartDefault picks the first input-capable device after filtering out raw
// hardware endpoints, which reject sample-rate conversion and fail to open at
// 16kHz. Falls back to the host default, then to any input-capable entry.
func smartDefault(devices []Device) (Device, bool) {
	for _, d := range devices {
		if d.MaxInputChannels > 0 && !isRawHardware(d.Name) {
			return d, true
		}
	}
	for _, d := range devices {
		if d.MaxInputChannels > 0 && d.IsDefault {
			return d, true
		}
	}
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			return d, true
		}
	}
	return Device{}, false
}

// isRawHardware recognizes ALSA-style raw device names such as "hw:0,0" or
// "HDA Intel PCH (hw:0,0)".
func isRawHardware(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasPrefix(lower, "hw:") || strings.Contains(lower, "(hw:")
}

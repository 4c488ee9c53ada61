package models

// DeviceSession describes one live access token in the session index.
type DeviceSession struct {
	DeviceID    string `json:"device_id"`
	AccessToken string `json:"-"`
}

// DeviceUnknown is the bucket used when a client supplies no device
// identifier and no user agent. Distinct clients may collide here; clients
// that send a device id never do.
const DeviceUnknown = "unknown"

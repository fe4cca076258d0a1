package goICloud

// Device is a trusted two-factor device as listed by the setup service.
type Device struct {
	AreaCode    string `json:"areaCode"`
	PhoneNumber string `json:"phoneNumber"`
	DeviceID    string `json:"deviceId"`
	DeviceType  string `json:"deviceType"`
}

type deviceList struct {
	Devices []Device `json:"devices"`
}

type loginRequest struct {
	AppleID       string `json:"apple_id"`
	Password      string `json:"password"`
	ExtendedLogin bool   `json:"extended_login"`
}

type validateCodeRequest struct {
	AreaCode         string `json:"areaCode"`
	DeviceType       string `json:"deviceType"`
	DeviceID         string `json:"deviceId"`
	PhoneNumber      string `json:"phoneNumber"`
	VerificationCode string `json:"verificationCode"`
	TrustBrowser     bool   `json:"trustBrowser"`
}

// StorageUsage is the open storage report returned by the setup service.
type StorageUsage map[string]any

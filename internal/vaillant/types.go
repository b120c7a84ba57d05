package vaillant

// Binding is a device bound to the account.
type Binding struct {
	DeviceID        string
	MAC             string
	ProductName     string
	SerialNumber    string
	FirmwareVersion string
	Online          bool
}

package transport

// Known UPS vendor IDs. Membership means "worth trying the decoders" during
// enumeration even when no explicit VID/PID is configured.
const (
	VendorAPC        = 0x051D
	VendorCyberPower = 0x0764
	VendorMGEEaton   = 0x0463
	VendorMGELiebert = 0x06DA
	VendorTrippLite  = 0x09AE
	VendorBelkin     = 0x050D
	VendorOpenUPS    = 0x04D8
	VendorIdowell    = 0x075D
	VendorKstar      = 0x09D6
	VendorDell       = 0x047C
	VendorIBM        = 0x04B3
	VendorPowerware  = 0x0592
	VendorDelta      = 0x05DD
	VendorSTMicroOEM = 0x0483
)

// upsVendors maps USB vendor IDs to display names.
var upsVendors = map[uint16]string{
	VendorAPC:        "APC",
	VendorCyberPower: "CyberPower",
	VendorMGEEaton:   "MGE UPS Systems / Eaton",
	VendorMGELiebert: "MGE / Liebert / Phoenixtec",
	VendorTrippLite:  "Tripp Lite",
	VendorBelkin:     "Belkin",
	VendorOpenUPS:    "OpenUPS",
	VendorIdowell:    "Idowell",
	VendorKstar:      "KSTAR",
	VendorDell:       "Dell",
	VendorIBM:        "IBM",
	VendorPowerware:  "Powerware",
	VendorDelta:      "Delta Electronics",
	VendorSTMicroOEM: "STMicroelectronics OEM",
}

// IsKnownVendor reports whether vid belongs to a known UPS vendor.
func IsKnownVendor(vid uint16) bool {
	_, ok := upsVendors[vid]
	return ok
}

// VendorName returns the display name for vid, or "" if unknown.
func VendorName(vid uint16) string {
	return upsVendors[vid]
}

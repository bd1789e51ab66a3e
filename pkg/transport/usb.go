package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf16"

	"github.com/gotmc/libusb/v2"

	"github.com/nutbridge/nutbridge-go/pkg/log"
)

// USB request constants for HID class transfers on endpoint 0.
const (
	// bmRequestType Device→Host, Class, Interface.
	requestTypeGetReport = 0xA1
	// bmRequestType Host→Device, Class, Interface.
	requestTypeSetReport = 0x21
	// bmRequestType Device→Host, Standard, Device.
	requestTypeGetDescriptor = 0x80

	requestGetReport     = 0x01
	requestSetReport     = 0x09
	requestGetDescriptor = 0x06

	descriptorTypeString = 0x03
	usbClassHID          = 0x03

	// langIDEnglishUS is used for all string-descriptor fetches.
	langIDEnglishUS = 0x0409
)

// DefaultRescanInterval is how often the enumeration task rescans the bus
// while no UPS is attached.
const DefaultRescanInterval = 2 * time.Second

// USBConfig configures a USBTransport.
type USBConfig struct {
	// VendorID/ProductID restrict matching to one device. Zero means
	// auto-detect using the vendor registry and device class.
	VendorID  uint16
	ProductID uint16

	// RescanInterval overrides DefaultRescanInterval.
	RescanInterval time.Duration

	// Logger for transport diagnostics (optional).
	Logger log.Logger
}

// USBTransport implements Transport over a host libusb stack.
//
// A single mutex serializes all access to the USB stack; control transfers
// run on the caller goroutine bounded by the clamped timeout, and the
// enumeration task owns attach/detach handling.
type USBTransport struct {
	cfg    USBConfig
	logger log.Logger

	// usbMu serializes the libusb context and handle.
	usbMu  sync.Mutex
	ctx    *libusb.Context
	dev    *libusb.Device
	handle *libusb.DeviceHandle

	vendorID  uint16
	productID uint16
	ifaceNum  int
	epIn      *libusb.EndpointDescriptor
	epOut     *libusb.EndpointDescriptor

	connected   atomic.Bool
	inputOnly   atomic.Bool
	initialized atomic.Bool

	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// NewUSBTransport creates a USB transport. Call Initialize before use.
func NewUSBTransport(cfg USBConfig) *USBTransport {
	if cfg.RescanInterval <= 0 {
		cfg.RescanInterval = DefaultRescanInterval
	}
	return &USBTransport{
		cfg:    cfg,
		logger: log.OrNoop(cfg.Logger),
	}
}

// Initialize opens the libusb context and starts the enumeration task.
// Returns nil even when no UPS is present yet.
func (t *USBTransport) Initialize(ctx context.Context) error {
	if t.initialized.Load() {
		return nil
	}

	usbCtx, err := libusb.NewContext()
	if err != nil {
		return fmt.Errorf("failed to open libusb context: %w", err)
	}

	t.usbMu.Lock()
	t.ctx = usbCtx
	t.usbMu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	t.runCancel = cancel
	t.initialized.Store(true)

	// Initial probe; a miss is not an error, the scan task keeps looking.
	if err := t.scanOnce(); err != nil {
		t.logger.Debugf("usb: no UPS found on initial scan: %v", err)
	}

	t.wg.Add(1)
	go t.enumerationLoop(runCtx)

	return nil
}

// Deinitialize stops the enumeration task and releases the device.
func (t *USBTransport) Deinitialize() error {
	if !t.initialized.Load() {
		return nil
	}
	t.initialized.Store(false)

	if t.runCancel != nil {
		t.runCancel()
	}
	t.wg.Wait()

	t.usbMu.Lock()
	defer t.usbMu.Unlock()

	t.closeDeviceLocked()
	if t.ctx != nil {
		if err := t.ctx.Close(); err != nil {
			return fmt.Errorf("failed to close libusb context: %w", err)
		}
		t.ctx = nil
	}
	return nil
}

// IsConnected reports whether a UPS device is attached and claimed.
func (t *USBTransport) IsConnected() bool { return t.connected.Load() }

// VendorID returns the attached device's USB vendor ID (0 if unknown).
func (t *USBTransport) VendorID() uint16 {
	t.usbMu.Lock()
	defer t.usbMu.Unlock()
	return t.vendorID
}

// ProductID returns the attached device's USB product ID (0 if unknown).
func (t *USBTransport) ProductID() uint16 {
	t.usbMu.Lock()
	defer t.usbMu.Unlock()
	return t.productID
}

// IsInputOnly reports whether the claimed interface has no OUT endpoint.
func (t *USBTransport) IsInputOnly() bool { return t.inputOnly.Load() }

// enumerationLoop rescans the bus while disconnected and verifies liveness
// while connected. It is the only goroutine that attaches or detaches the
// device; callers observe the result through the connected flag.
func (t *USBTransport) enumerationLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.RescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if t.connected.Load() {
			t.checkLiveness()
			continue
		}
		if err := t.scanOnce(); err != nil {
			t.logger.Tracef("usb: scan: %v", err)
		}
	}
}

// checkLiveness detects a silently vanished device by re-reading its
// descriptor.
func (t *USBTransport) checkLiveness() {
	t.usbMu.Lock()
	defer t.usbMu.Unlock()

	if t.dev == nil {
		return
	}
	if _, err := t.dev.DeviceDescriptor(); err != nil {
		t.logger.Warnf("usb: device gone: %v", err)
		t.closeDeviceLocked()
	}
}

// scanOnce iterates the bus and claims the first matching UPS device.
func (t *USBTransport) scanOnce() error {
	t.usbMu.Lock()
	defer t.usbMu.Unlock()

	if t.ctx == nil {
		return ErrNotConnected
	}

	devices, err := t.ctx.DeviceList()
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	for _, dev := range devices {
		desc, err := dev.DeviceDescriptor()
		if err != nil {
			continue
		}
		if !t.isUPSDevice(desc) {
			continue
		}
		if err := t.attachLocked(dev, desc); err != nil {
			t.logger.Debugf("usb: device %04x:%04x matched but attach failed: %v",
				desc.VendorID, desc.ProductID, err)
			continue
		}
		t.logger.Infof("usb: attached UPS %04x:%04x (%s)",
			desc.VendorID, desc.ProductID, VendorName(desc.VendorID))
		return nil
	}
	return ErrNotConnected
}

// isUPSDevice decides whether a descriptor looks like a UPS: an exact match
// with the configured IDs, a known UPS vendor, or a HID/zero-class device.
func (t *USBTransport) isUPSDevice(desc *libusb.DeviceDescriptor) bool {
	if t.cfg.VendorID != 0 {
		if desc.VendorID != t.cfg.VendorID {
			return false
		}
		return t.cfg.ProductID == 0 || desc.ProductID == t.cfg.ProductID
	}
	if IsKnownVendor(desc.VendorID) {
		return true
	}
	class := uint8(desc.DeviceClass)
	sub := uint8(desc.DeviceSubClass)
	return class == usbClassHID || (class == 0 && sub == 0)
}

// attachLocked opens the device, claims its first HID interface, and
// resolves the endpoints. Caller holds usbMu.
func (t *USBTransport) attachLocked(dev *libusb.Device, desc *libusb.DeviceDescriptor) error {
	handle, err := dev.Open()
	if err != nil {
		return fmt.Errorf("failed to open device: %w", err)
	}

	if err := handle.SetAutoDetachKernelDriver(true); err != nil {
		t.logger.Debugf("usb: auto-detach not supported: %v", err)
	}

	cfg, err := dev.ActiveConfigDescriptor()
	if err != nil {
		handle.Close()
		return fmt.Errorf("failed to read config descriptor: %w", err)
	}

	ifaceNum := -1
	var epIn, epOut *libusb.EndpointDescriptor
	for _, iface := range cfg.SupportedInterfaces {
		for _, alt := range iface.InterfaceDescriptors {
			if uint8(alt.InterfaceClass) != usbClassHID {
				continue
			}
			ifaceNum = int(alt.InterfaceNumber)
			for _, ep := range alt.EndpointDescriptors {
				if byte(ep.EndpointAddress)&0x80 != 0 {
					if epIn == nil {
						epIn = ep
					}
				} else if epOut == nil {
					epOut = ep
				}
			}
			break
		}
		if ifaceNum >= 0 {
			break
		}
	}
	if ifaceNum < 0 || epIn == nil {
		handle.Close()
		return fmt.Errorf("no HID interface with an IN endpoint")
	}

	if err := handle.ClaimInterface(ifaceNum); err != nil {
		handle.Close()
		return fmt.Errorf("failed to claim interface %d: %w", ifaceNum, err)
	}

	t.dev = dev
	t.handle = handle
	t.vendorID = desc.VendorID
	t.productID = desc.ProductID
	t.ifaceNum = ifaceNum
	t.epIn = epIn
	t.epOut = epOut
	t.inputOnly.Store(epOut == nil)
	t.connected.Store(true)
	return nil
}

// closeDeviceLocked releases the handle and clears connection state.
// Caller holds usbMu.
func (t *USBTransport) closeDeviceLocked() {
	t.connected.Store(false)
	if t.handle != nil {
		_ = t.handle.ReleaseInterface(t.ifaceNum)
		t.handle.Close()
		t.handle = nil
	}
	t.dev = nil
	t.vendorID = 0
	t.productID = 0
	t.epIn = nil
	t.epOut = nil
}

// HIDGetReport issues a GET_REPORT control transfer and fills buf with the
// response payload.
func (t *USBTransport) HIDGetReport(reportType ReportType, reportID uint8, buf []byte, timeout time.Duration) (int, error) {
	t.usbMu.Lock()
	defer t.usbMu.Unlock()

	if t.handle == nil {
		return 0, ErrNotConnected
	}

	ms := int(ClampTimeout(timeout) / time.Millisecond)
	value := uint16(reportType)<<8 | uint16(reportID)
	n, err := t.handle.ControlTransfer(
		requestTypeGetReport, requestGetReport, value, uint16(t.ifaceNum),
		buf, len(buf), ms)
	if err != nil {
		t.noteTransferErrorLocked(err)
		return 0, fmt.Errorf("GET_REPORT %s 0x%02x: %w", reportType, reportID, err)
	}
	return n, nil
}

// HIDSetReport issues a SET_REPORT control transfer.
func (t *USBTransport) HIDSetReport(reportType ReportType, reportID uint8, data []byte, timeout time.Duration) error {
	t.usbMu.Lock()
	defer t.usbMu.Unlock()

	if t.handle == nil {
		return ErrNotConnected
	}

	ms := int(ClampTimeout(timeout) / time.Millisecond)
	value := uint16(reportType)<<8 | uint16(reportID)
	n, err := t.handle.ControlTransfer(
		requestTypeSetReport, requestSetReport, value, uint16(t.ifaceNum),
		data, len(data), ms)
	if err != nil {
		t.noteTransferErrorLocked(err)
		return fmt.Errorf("SET_REPORT %s 0x%02x: %w", reportType, reportID, err)
	}
	if n != len(data) {
		return fmt.Errorf("SET_REPORT %s 0x%02x: short write %d of %d", reportType, reportID, n, len(data))
	}
	return nil
}

// GetStringDescriptor fetches the indexed string descriptor and decodes it
// from UTF-16LE.
func (t *USBTransport) GetStringDescriptor(index uint8) (string, error) {
	if index == 0 {
		return "", ErrNoStringDescriptor
	}

	t.usbMu.Lock()
	defer t.usbMu.Unlock()

	if t.handle == nil {
		return "", ErrNotConnected
	}

	buf := make([]byte, 255)
	value := uint16(descriptorTypeString)<<8 | uint16(index)
	n, err := t.handle.ControlTransfer(
		requestTypeGetDescriptor, requestGetDescriptor, value, langIDEnglishUS,
		buf, len(buf), int(time.Second/time.Millisecond))
	if err != nil {
		return "", fmt.Errorf("string descriptor %d: %w", index, err)
	}
	s := decodeUTF16LEDescriptor(buf[:n])
	if s == "" {
		return "", ErrNoStringDescriptor
	}
	return s, nil
}

// decodeUTF16LEDescriptor decodes a USB string descriptor: one length byte,
// one type byte, then UTF-16LE code units.
func decodeUTF16LEDescriptor(raw []byte) string {
	if len(raw) < 2 || raw[1] != descriptorTypeString {
		return ""
	}
	length := int(raw[0])
	if length > len(raw) {
		length = len(raw)
	}
	payload := raw[2:length]
	units := make([]uint16, 0, len(payload)/2)
	for i := 0; i+1 < len(payload); i += 2 {
		units = append(units, uint16(payload[i])|uint16(payload[i+1])<<8)
	}
	return string(utf16.Decode(units))
}

// ReadBytes reads from the interrupt IN endpoint.
func (t *USBTransport) ReadBytes(buf []byte, timeout time.Duration) (int, error) {
	t.usbMu.Lock()
	defer t.usbMu.Unlock()

	if t.handle == nil || t.epIn == nil {
		return 0, ErrNotConnected
	}
	ms := int(ClampTimeout(timeout) / time.Millisecond)
	n, err := t.handle.InterruptTransfer(t.epIn.EndpointAddress, buf, len(buf), ms)
	if err != nil {
		t.noteTransferErrorLocked(err)
		return 0, fmt.Errorf("interrupt read: %w", err)
	}
	return n, nil
}

// WriteBytes writes to the OUT endpoint.
func (t *USBTransport) WriteBytes(data []byte, timeout time.Duration) error {
	t.usbMu.Lock()
	defer t.usbMu.Unlock()

	if t.handle == nil {
		return ErrNotConnected
	}
	if t.epOut == nil {
		return ErrInputOnly
	}
	ms := int(ClampTimeout(timeout) / time.Millisecond)
	n, err := t.handle.InterruptTransfer(t.epOut.EndpointAddress, data, len(data), ms)
	if err != nil {
		t.noteTransferErrorLocked(err)
		return fmt.Errorf("interrupt write: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("interrupt write: short write %d of %d", n, len(data))
	}
	return nil
}

// noteTransferErrorLocked detaches the device on errors that indicate it is
// gone, so the enumeration task can re-attach. Caller holds usbMu.
func (t *USBTransport) noteTransferErrorLocked(err error) {
	if err == nil {
		return
	}
	// libusb reports a vanished device as NO_DEVICE; descriptor re-reads
	// in checkLiveness catch the rest.
	if _, derr := t.dev.DeviceDescriptor(); derr != nil {
		t.logger.Warnf("usb: device gone after transfer error: %v", err)
		t.closeDeviceLocked()
	}
}

// Compile-time interface satisfaction check.
var _ Transport = (*USBTransport)(nil)

// Package transport hides host-USB and simulation differences behind one
// contract.
//
// A Transport exchanges HID class reports (GET_REPORT/SET_REPORT control
// transfers on endpoint 0) and, for byte-stream protocols, raw endpoint I/O
// with a single attached UPS. Two implementations exist: USBTransport over
// libusb, and SimulationTransport which synthesizes plausible telemetry for
// development without hardware.
//
// The transport is consumed exclusively by the polling core and the vendor
// decoders. Decoders hold the transport as a non-owning capability; the
// transport outlives all decoders by construction.
package transport

package discovery

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Service constants.
const (
	// ServiceType is the DNS-SD service type for NUT daemons.
	ServiceType = "_nut._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// DefaultTTL is the DNS record TTL.
	DefaultTTL = 120 * time.Second
)

// Info describes the advertised NUT service.
type Info struct {
	// InstanceName is the service instance name (UPS name when empty).
	InstanceName string

	// Port is the NUT listener port.
	Port int

	// UpsName is the exported UPS name.
	UpsName string

	// Description is the human-readable UPS description.
	Description string

	// Manufacturer/Model carry the detected identity, when known.
	Manufacturer string
	Model        string
}

// AdvertiserConfig configures the advertiser.
type AdvertiserConfig struct {
	// Interface restricts advertising to one network interface; empty
	// means all interfaces.
	Interface string

	// TTL is the DNS record TTL (DefaultTTL if zero).
	TTL time.Duration
}

// Advertiser announces the NUT service over mDNS.
type Advertiser struct {
	config AdvertiserConfig

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates an mDNS advertiser.
func NewAdvertiser(config AdvertiserConfig) *Advertiser {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	return &Advertiser{config: config}
}

// getInterfaces returns the interfaces to advertise on; nil means all.
func (a *Advertiser) getInterfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// Advertise registers (or re-registers) the service. Call again with fresh
// Info to update TXT records after the device identity is detected.
func (a *Advertiser) Advertise(info Info) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	instance := info.InstanceName
	if instance == "" {
		instance = info.UpsName
	}
	if instance == "" {
		instance = "nutbridge"
	}

	server, err := zeroconf.Register(
		instance,
		ServiceType,
		Domain,
		info.Port,
		encodeTXT(info),
		a.getInterfaces(),
		zeroconf.TTL(uint32(a.config.TTL.Seconds())),
	)
	if err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceType, err)
	}

	a.server = server
	return nil
}

// Stop withdraws the advertisement.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// encodeTXT builds the TXT record set.
func encodeTXT(info Info) []string {
	txt := []string{
		"ups=" + info.UpsName,
	}
	if info.Description != "" {
		txt = append(txt, "desc="+info.Description)
	}
	if info.Manufacturer != "" {
		txt = append(txt, "mfr="+info.Manufacturer)
	}
	if info.Model != "" {
		txt = append(txt, "model="+info.Model)
	}
	return txt
}

package protocol

import (
	"sort"
	"strings"
	"sync"

	"github.com/nutbridge/nutbridge-go/pkg/transport"
)

// Constructor builds a decoder instance bound to a transport.
type Constructor func(tr transport.Transport, opts Options) Decoder

// registration is one factory entry.
type registration struct {
	name      string
	priority  int
	construct Constructor
}

// Registry maps USB vendor IDs to decoder constructors, plus an ordered
// fallback chain for unknown vendors. It is initialized explicitly at
// startup; explicit registration keeps tests hermetic.
type Registry struct {
	mu       sync.RWMutex
	byVendor map[uint16][]registration
	fallback []registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byVendor: make(map[uint16][]registration)}
}

// RegisterVendor adds a constructor for specific vendor IDs. Higher
// priorities are probed first.
func (r *Registry) RegisterVendor(name string, priority int, vendorIDs []uint16, construct Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, vid := range vendorIDs {
		entries := append(r.byVendor[vid], registration{name, priority, construct})
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].priority > entries[j].priority
		})
		r.byVendor[vid] = entries
	}
}

// RegisterFallback adds a constructor probed when no vendor entry matches.
func (r *Registry) RegisterFallback(name string, priority int, construct Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = append(r.fallback, registration{name, priority, construct})
	sort.SliceStable(r.fallback, func(i, j int) bool {
		return r.fallback[i].priority > r.fallback[j].priority
	})
}

// CreateForVendor probes the vendor-specific entries in priority order,
// returning the first decoder whose Detect succeeds, then the fallbacks.
// Returns nil when nothing detects.
func (r *Registry) CreateForVendor(vid uint16, tr transport.Transport, opts Options) Decoder {
	r.mu.RLock()
	entries := append([]registration(nil), r.byVendor[vid]...)
	fallbacks := append([]registration(nil), r.fallback...)
	r.mu.RUnlock()

	for _, e := range entries {
		d := e.construct(tr, opts)
		if d.Detect() {
			return d
		}
	}
	for _, e := range fallbacks {
		d := e.construct(tr, opts)
		if d.Detect() {
			return d
		}
	}
	return nil
}

// CreateByName constructs a decoder whose registered name contains the
// given substring, case-insensitively. Supports the manual
// protocol_selection override; no Detect is performed. Returns nil when no
// name matches.
func (r *Registry) CreateByName(substr string, tr transport.Transport, opts Options) Decoder {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(substr)
	match := func(entries []registration) Decoder {
		for _, e := range entries {
			if strings.Contains(strings.ToLower(e.name), needle) {
				return e.construct(tr, opts)
			}
		}
		return nil
	}

	for _, entries := range r.byVendor {
		if d := match(entries); d != nil {
			return d
		}
	}
	return match(r.fallback)
}

// Names returns all registered decoder names, vendor entries first.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var names []string
	add := func(e registration) {
		if !seen[e.name] {
			seen[e.name] = true
			names = append(names, e.name)
		}
	}
	for _, entries := range r.byVendor {
		for _, e := range entries {
			add(e)
		}
	}
	for _, e := range r.fallback {
		add(e)
	}
	sort.Strings(names)
	return names
}

// NewDefaultRegistry builds the registry with every built-in decoder.
// Vendor-specific decoders outrank byte-stream and heuristic ones.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()

	r.RegisterVendor("APC HID", 100, []uint16{transport.VendorAPC}, func(tr transport.Transport, opts Options) Decoder {
		return NewApcHidDecoder(tr, opts)
	})
	r.RegisterVendor("APC Smart", 50, []uint16{transport.VendorAPC}, func(tr transport.Transport, opts Options) Decoder {
		return NewApcSmartDecoder(tr, opts)
	})
	r.RegisterVendor("CyberPower HID", 100, []uint16{transport.VendorCyberPower}, func(tr transport.Transport, opts Options) Decoder {
		return NewCyberPowerDecoder(tr, opts)
	})
	r.RegisterVendor("Eaton HID", 100,
		[]uint16{transport.VendorMGEEaton, transport.VendorMGELiebert, transport.VendorPowerware},
		func(tr transport.Transport, opts Options) Decoder {
			return NewEatonDecoder(tr, opts)
		})
	r.RegisterFallback("Generic HID", 10, func(tr transport.Transport, opts Options) Decoder {
		return NewGenericHidDecoder(tr, opts)
	})

	return r
}

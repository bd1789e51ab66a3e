// Package discovery advertises the NUT service over mDNS/DNS-SD so
// home-automation integrations find the bridge without configuration.
//
// The service type is "_nut._tcp"; TXT records carry the UPS name,
// description, and detected identity when available.
package discovery

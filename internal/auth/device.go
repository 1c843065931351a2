package auth

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// DeviceAuthenticator checks an embedded device's declared identity and API
// key against the store. Devices never get a JWT: the key itself is the
// credential and is re-checked on every call, so deactivating a device takes
// effect immediately.
type DeviceAuthenticator struct {
	store Store
	now   func() time.Time
}

// NewDeviceAuthenticator constructs a DeviceAuthenticator.
func NewDeviceAuthenticator(store Store) (*DeviceAuthenticator, error) {
	if store == nil {
		return nil, errors.New("auth: device store is required")
	}
	return &DeviceAuthenticator{store: store, now: time.Now}, nil
}

// Authenticate verifies the claimed device id and presented API key, then the
// optional source-IP allow-list. The IP check runs only after the key
// verified, so an IP mismatch never leaks whether a key was otherwise valid.
func (a *DeviceAuthenticator) Authenticate(ctx context.Context, deviceID, apiKey, sourceIP string) (DeviceIdentity, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" || apiKey == "" {
		return DeviceIdentity{}, ErrDeviceUnauthorized
	}
	device, err := a.store.Devices(ctx).Find(ctx, deviceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return DeviceIdentity{}, ErrDeviceUnauthorized
		}
		return DeviceIdentity{}, err
	}
	if !device.Active {
		return DeviceIdentity{}, ErrDeviceUnauthorized
	}
	// A record without a key hash fails closed instead of allowing
	// passwordless access.
	if strings.TrimSpace(device.APIKeyHash) == "" {
		return DeviceIdentity{}, ErrDeviceMisconfigured
	}
	if err := VerifyPassword(device.APIKeyHash, apiKey); err != nil {
		return DeviceIdentity{}, ErrDeviceUnauthorized
	}
	if device.AllowedIP != "" && NormalizeIP(sourceIP) != NormalizeIP(device.AllowedIP) {
		return DeviceIdentity{}, ErrDeviceIPForbidden
	}
	return DeviceIdentity{ID: device.ID, Code: device.Code, Name: device.Name}, nil
}

// NormalizeIP strips ports and IPv4-mapped IPv6 prefixes so stored allow-list
// values compare against whatever form the transport reports.
func NormalizeIP(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if ip := net.ParseIP(addr); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
		return ip.String()
	}
	return strings.TrimPrefix(addr, "::ffff:")
}

package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedDevice(t *testing.T, store *memStore, id, key, allowedIP string, active bool) {
	t.Helper()
	hash := ""
	if key != "" {
		var err error
		hash, err = HashPassword(key)
		if err != nil {
			t.Fatalf("HashPassword: %v", err)
		}
	}
	store.devices[id] = &Device{
		ID:         id,
		Code:       "DEV-" + id,
		Name:       "Device " + id,
		APIKeyHash: hash,
		AllowedIP:  allowedIP,
		Active:     active,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestDeviceAuthenticate(t *testing.T) {
	store := newMemStore()
	seedDevice(t, store, "d1", "key-one", "", true)
	seedDevice(t, store, "d2", "key-two", "192.168.1.50", true)
	seedDevice(t, store, "d3", "key-three", "", false)
	seedDevice(t, store, "d4", "", "", true)
	authn, err := NewDeviceAuthenticator(store)
	if err != nil {
		t.Fatalf("NewDeviceAuthenticator: %v", err)
	}
	ctx := context.Background()

	cases := []struct {
		name        string
		id, key, ip string
		wantErr     error
	}{
		{"valid key", "d1", "key-one", "10.0.0.8", nil},
		{"valid key and allowed ip", "d2", "key-two", "192.168.1.50:51000", nil},
		{"ipv4-mapped source", "d2", "key-two", "::ffff:192.168.1.50", nil},
		{"wrong ip", "d2", "key-two", "192.168.1.51", ErrDeviceIPForbidden},
		{"wrong key", "d1", "wrong", "10.0.0.8", ErrDeviceUnauthorized},
		{"unknown device", "ghost", "key-one", "10.0.0.8", ErrDeviceUnauthorized},
		{"inactive device", "d3", "key-three", "10.0.0.8", ErrDeviceUnauthorized},
		{"missing key hash fails closed", "d4", "anything", "10.0.0.8", ErrDeviceMisconfigured},
		{"blank id", "", "key-one", "10.0.0.8", ErrDeviceUnauthorized},
		{"blank key", "d1", "", "10.0.0.8", ErrDeviceUnauthorized},
		// The allow-list check runs after key verification, so a bad key from
		// a bad address still reads as unauthorized, not ip-forbidden.
		{"wrong key and wrong ip", "d2", "wrong", "10.0.0.8", ErrDeviceUnauthorized},
	}
	for _, tc := range cases {
		identity, err := authn.Authenticate(ctx, tc.id, tc.key, tc.ip)
		if tc.wantErr == nil {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tc.name, err)
			}
			if identity.ID != tc.id {
				t.Fatalf("%s: wrong identity %+v", tc.name, identity)
			}
			continue
		}
		if !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s: want %v, got %v", tc.name, tc.wantErr, err)
		}
	}
}

func TestNormalizeIP(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"192.168.1.50", "192.168.1.50"},
		{"192.168.1.50:51000", "192.168.1.50"},
		{"::ffff:192.168.1.50", "192.168.1.50"},
		{"[::1]:8080", "::1"},
		{"2001:db8::1", "2001:db8::1"},
		{" 10.0.0.1 ", "10.0.0.1"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeIP(tc.in); got != tc.want {
			t.Fatalf("NormalizeIP(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

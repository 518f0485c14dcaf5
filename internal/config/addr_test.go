package config

import (
	"errors"
	"testing"
)

func TestResolveAddr(t *testing.T) {
	cases := []struct {
		spec     string
		wantHost string
		wantPort int
	}{
		{"ctrl.example.org:2150", "ctrl.example.org", 2150},
		{"ctrl.example.org", "ctrl.example.org", 2150},
		{"ctrl.example.org:", "ctrl.example.org", 2150},
		{":9000", "127.0.0.1", 9000},
		{"10.0.0.1:1", "10.0.0.1", 1},
		{"10.0.0.1:65535", "10.0.0.1", 65535},
		{"", "127.0.0.1", 2150},
	}
	for _, tc := range cases {
		t.Run(tc.spec, func(t *testing.T) {
			host, port, err := ResolveAddr(tc.spec, "127.0.0.1", 2150)
			if err != nil {
				t.Fatalf("resolve %q: %v", tc.spec, err)
			}
			if host != tc.wantHost || port != tc.wantPort {
				t.Fatalf("resolve %q: got (%q, %d), want (%q, %d)",
					tc.spec, host, port, tc.wantHost, tc.wantPort)
			}
		})
	}
}

func TestResolveAddrRejectsBadPorts(t *testing.T) {
	for _, spec := range []string{
		"host:99999",
		"host:0",
		"host:-1",
		"host:2150x",
		"host:port",
		":65536",
	} {
		t.Run(spec, func(t *testing.T) {
			_, _, err := ResolveAddr(spec, "127.0.0.1", 2150)
			if !errors.Is(err, ErrInvalidAddress) {
				t.Fatalf("resolve %q: expected address error, got %v", spec, err)
			}
		})
	}
}

func TestResolveAddrIsPure(t *testing.T) {
	for i := 0; i < 3; i++ {
		host, port, err := ResolveAddr("ctrl:2222", "127.0.0.1", 2150)
		if err != nil || host != "ctrl" || port != 2222 {
			t.Fatalf("resolution changed across calls: (%q, %d, %v)", host, port, err)
		}
	}
}

func TestCheckPort(t *testing.T) {
	if err := CheckPort(2150); err != nil {
		t.Fatalf("valid port rejected: %v", err)
	}
	if err := CheckPort(0); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected address error, got %v", err)
	}
}

package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidAddress = errors.New("config: invalid controller address")

// ResolveAddr parses a controller specification of the form "host:port",
// "host", or ":port" into a validated pair. Omitted parts take the given
// defaults. The split happens on the first colon only; bracketed IPv6
// hosts are not supported. Same input, same result: no state involved.
func ResolveAddr(spec, defHost string, defPort int) (string, int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return defHost, defPort, CheckPort(defPort)
	}

	host, portStr, hasColon := strings.Cut(spec, ":")
	if !hasColon {
		return spec, defPort, CheckPort(defPort)
	}
	if host == "" {
		host = defHost
	}
	if portStr == "" {
		return host, defPort, CheckPort(defPort)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("%w: port %q is not a number", ErrInvalidAddress, portStr)
	}
	if err := CheckPort(port); err != nil {
		return "", 0, err
	}
	return host, port, nil
}

// CheckPort validates the 1-65535 port range.
func CheckPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidAddress, port)
	}
	return nil
}

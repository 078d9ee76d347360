// internal/client/detect.go
package client

import (
	"net"
	"time"
)

// DefaultAddress is the daemon's default listen address.
const DefaultAddress = "127.0.0.1:6060"

// IsDaemonRunning checks if the daemon is accessible at the resolved
// address.
func IsDaemonRunning() bool {
	addr, err := ResolveAddress()
	if err != nil {
		return false
	}
	return IsDaemonRunningAt(addr)
}

// IsDaemonRunningAt checks if the daemon is accessible at the given
// address.
func IsDaemonRunningAt(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

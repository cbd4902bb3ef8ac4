package netutil

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// FreeTCPPort asks the OS for a port on host that is free right now.
// The port is released before returning, so another process may take it first.
func FreeTCPPort(host string) (int, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, fmt.Errorf("listening to acquire port: %w", err)
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// PortFree reports whether the port on host can be bound right now.
func PortFree(host string, port int) bool {
	listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

// WaitPortFree polls until the port on host can be bound or the timeout elapses.
func WaitPortFree(host string, port int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if PortFree(host, port) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
}

//go:build linux

package radio

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/sys/unix"
)

// ErrUnexpectedConnType indicates a net.ListenPacket call returned a
// connection type other than *net.UDPConn. Mirrors
// internal/netio/rawsock_linux.go's ErrUnexpectedConnType.
var ErrUnexpectedConnType = errors.New("radio: unexpected connection type from ListenPacket")

// dialMulticast opens a UDP socket joined to group's multicast address,
// bound so it both sends to and receives from the group. Joining is
// delegated to net.ListenMulticastUDP, which issues the IP_ADD_MEMBERSHIP
// join itself; when iface is set, SO_BINDTODEVICE is applied afterward via
// the connection's raw fd, the same SyscallConn-based pattern
// internal/netio/rawsock_linux.go uses for its Control callbacks.
func dialMulticast(group netip.AddrPort, iface string) (*net.UDPConn, *net.UDPAddr, error) {
	var ifi *net.Interface
	if iface != "" {
		var err error
		ifi, err = net.InterfaceByName(iface)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve interface %q: %w", iface, err)
		}
	}

	groupAddr := net.UDPAddrFromAddrPort(group)

	conn, err := net.ListenMulticastUDP("udp4", ifi, groupAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen multicast %s: %w", group, err)
	}

	if iface != "" {
		if err := bindToDevice(conn, iface); err != nil {
			conn.Close()
			return nil, nil, err
		}
	}

	return conn, groupAddr, nil
}

// dialUnicast opens a plain UDP socket bound to addr for the unicast (ack)
// channel, with SO_BINDTODEVICE applied the same way as dialMulticast when
// iface is set.
func dialUnicast(addr netip.AddrPort, iface string) (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp4", net.UDPAddrFromAddrPort(addr))
	if err != nil {
		return nil, fmt.Errorf("listen unicast %s: %w", addr, err)
	}

	if iface != "" {
		if err := bindToDevice(conn, iface); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return conn, nil
}

// bindToDevice applies SO_BINDTODEVICE to conn's underlying file
// descriptor, pinning it to a specific network interface — the same
// treatment internal/netio/sender.go's WithBindDevice option gives BFD
// sockets for RFC 7130 micro-BFD per-member-link sessions.
func bindToDevice(conn *net.UDPConn, iface string) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("raw conn for SO_BINDTODEVICE: %w", err)
	}

	var sockErr error
	err = raw.Control(func(fd uintptr) {
		//nolint:gosec // G115: fd uintptr->int is safe; kernel FDs are always small positive integers.
		sockErr = unix.SetsockoptString(int(fd), unix.SOL_SOCKET, unix.SO_BINDTODEVICE, iface)
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}
	if sockErr != nil {
		return fmt.Errorf("set SO_BINDTODEVICE(%s): %w", iface, sockErr)
	}

	return nil
}

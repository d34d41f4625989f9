package tcp

import (
	"fmt"
	"net"
	"os"
	"strconv"
)

// HostInfo tells clients where a listening server can be reached
type HostInfo struct {
	Hostname string
	IP       string
	Port     int
}

// Listen opens a TCP listener on host:port. An empty host binds every
// interface and port 0 lets the OS pick an ephemeral port.
func Listen(host string, port int) (net.Listener, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return listener, nil
}

// DiscoverHost reports the host name and a reachable address for listener.
// When the listener is bound to every interface the first non-loopback IPv4
// address is used, falling back to whatever the host name resolves to.
func DiscoverHost(listener net.Listener) (HostInfo, error) {
	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		return HostInfo{}, fmt.Errorf("listener address %s is not a TCP address", listener.Addr())
	}

	hostname, err := os.Hostname()
	if err != nil {
		return HostInfo{}, fmt.Errorf("cannot get the host name: %w", err)
	}

	info := HostInfo{Hostname: hostname, Port: tcpAddr.Port}
	if !tcpAddr.IP.IsUnspecified() && tcpAddr.IP != nil {
		info.IP = tcpAddr.IP.String()
		return info, nil
	}

	if ip := firstNonLoopbackIPv4(); ip != "" {
		info.IP = ip
		return info, nil
	}
	addrs, err := net.LookupHost(hostname)
	if err != nil || len(addrs) == 0 {
		return HostInfo{}, fmt.Errorf("that host does not exist: %s", hostname)
	}
	info.IP = addrs[0]
	return info, nil
}

func firstNonLoopbackIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}

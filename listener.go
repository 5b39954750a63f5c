package tftpboot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/go-logr/logr"
	"github.com/pin/tftp/v3"
	"inet.af/netaddr"
)

// Host is the endpoint a listener is bound to.
type Host struct {
	Protocol string
	IP       netaddr.IP
	Port     uint16
}

func (h Host) String() string {
	return fmt.Sprintf("%s/%s", h.Protocol, netaddr.IPPortFrom(h.IP, h.Port))
}

// UDPListener serves TFTP on one address. No socket exists until Start.
type UDPListener struct {
	Name    string
	Addr    netaddr.IPPort
	Backend ReadBackend
	Log     logr.Logger
	// Timeout and Retries tune the TFTP engine, zero keeps its defaults.
	Timeout time.Duration
	Retries int

	conn   *net.UDPConn
	srv    *tftp.Server
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// NewUDPListener declares a listener for addr without opening it.
func NewUDPListener(name string, addr netaddr.IPPort, b ReadBackend, l logr.Logger) *UDPListener {
	return &UDPListener{Name: name, Addr: addr, Backend: b, Log: l}
}

// network picks the address family from the bind address itself, auto
// detection gets IPv4 wrong on dual stack hosts.
func (l *UDPListener) network() string {
	if l.Addr.IP().Is4() {
		return "udp4"
	}
	return "udp6"
}

// Start binds the socket and starts serving in the background.
func (l *UDPListener) Start() error {
	if l.conn != nil {
		return fmt.Errorf("listener %s already started", l.Name)
	}
	conn, err := net.ListenUDP(l.network(), l.Addr.UDPAddr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.Addr, err)
	}
	srv := tftp.NewServer(l.readHandler, nil)
	if l.Timeout > 0 {
		srv.SetTimeout(l.Timeout)
	}
	if l.Retries > 0 {
		srv.SetRetries(l.Retries)
	}
	l.conn, l.srv, l.done = conn, srv, make(chan struct{})
	// cancelled by Stop so in flight requests give up instead of holding Shutdown.
	l.ctx, l.cancel = context.WithCancel(context.Background())

	go func(done chan struct{}) {
		defer close(done)
		if err := srv.Serve(conn); err != nil && !errors.Is(err, net.ErrClosed) {
			l.Log.Error(err, "tftp server stopped", "name", l.Name)
		}
	}(l.done)
	l.Log.Info("listening", "name", l.Name, "host", l.Host().String())
	return nil
}

// Stop stops accepting requests, aborts running transfers and closes the socket.
func (l *UDPListener) Stop() error {
	if l.conn == nil {
		return nil
	}
	l.cancel()
	l.srv.Shutdown()
	err := l.conn.Close()
	<-l.done
	l.conn, l.srv, l.done, l.ctx, l.cancel = nil, nil, nil, nil, nil
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	l.Log.Info("stopped listening", "name", l.Name)
	return err
}

// Host returns the bound endpoint, with the real port when Addr asked for port 0.
func (l *UDPListener) Host() Host {
	h := Host{Protocol: "UDP", IP: l.Addr.IP(), Port: l.Addr.Port()}
	if l.conn == nil {
		return h
	}
	if ua, ok := l.conn.LocalAddr().(*net.UDPAddr); ok {
		if ipp, ok := netaddr.FromStdAddr(ua.IP, ua.Port, ua.Zone); ok {
			h.IP, h.Port = ipp.IP(), ipp.Port()
		}
	}
	return h
}

func (l *UDPListener) readHandler(filename string, rf io.ReaderFrom) error {
	host := l.Host()
	local := netaddr.IPPortFrom(host.IP, host.Port)
	if rpi, ok := rf.(tftp.RequestPacketInfo); ok {
		if ip, ok := netaddr.FromStdIP(rpi.LocalIP()); ok && !ip.IsUnspecified() {
			local = netaddr.IPPortFrom(ip, host.Port)
		}
	}
	var remote netaddr.IPPort
	if ot, ok := rf.(tftp.OutgoingTransfer); ok {
		ra := ot.RemoteAddr()
		remote, _ = netaddr.FromStdAddr(ra.IP, ra.Port, ra.Zone)
	}
	ctx := WithEndpoints(l.ctx, local, remote)
	return serveRead(ctx, l.Backend, l.Log.WithValues("listener", l.Name, "remote", remote.String()), filename, rf)
}

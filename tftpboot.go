// Package tftpboot is a TFTP server for network booting machines.
//
// Static boot artifacts are served from a root directory. Boot-loader
// configuration files are rendered per request from the boot parameters the
// controller returns for the requesting machine. A Service keeps one listener
// bound to every eligible local address.
package tftpboot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/jacobweinstock/tftpboot/metrics"
	"golang.org/x/sync/errgroup"
	"inet.af/netaddr"
)

// RefreshInterval is how often the listeners are reconciled with the local addresses.
const RefreshInterval = 45 * time.Second

// DefaultPort is the TFTP port.
const DefaultPort = 69

// Listener is one bound endpoint owned by a Service.
type Listener interface {
	Start() error
	Stop() error
}

// InterfaceLister returns the addresses of the local network interfaces.
type InterfaceLister interface {
	Addresses(ctx context.Context) ([]string, error)
}

// Service owns one Listener per eligible local address. UpdateServers must only
// be called from one goroutine at a time; Run serialises it for the lifetime of the Service.
type Service struct {
	Port       uint16
	Backend    ReadBackend
	Interfaces InterfaceLister
	Log        logr.Logger
	Metrics    metrics.Recorder
	// Timeout and Retries are passed to every UDPListener.
	Timeout time.Duration
	Retries int
	// NewListener declares, without starting, the listener for addr. Defaults to a UDPListener.
	NewListener func(name string, addr netaddr.IPPort) Listener

	refresh     time.Duration
	servers     map[string]Listener
	triggerOnce sync.Once
	trigger     chan struct{}
}

// Run reconciles the listeners now, every RefreshInterval and on every Trigger
// until ctx is done, then stops all of them.
func (s *Service) Run(ctx context.Context) error {
	interval := s.refresh
	if interval == 0 {
		interval = RefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	_ = s.UpdateServers(ctx)
	for {
		select {
		case <-ctx.Done():
			return s.stopAll()
		case <-ticker.C:
			_ = s.UpdateServers(ctx)
		case <-s.triggers():
			s.Log.Info("reconciling listeners on request")
			_ = s.UpdateServers(ctx)
		}
	}
}

// Trigger asks a running Service to reconcile as soon as possible. It never blocks.
func (s *Service) Trigger() {
	select {
	case s.triggers() <- struct{}{}:
	default:
		// one pass is already pending.
	}
}

func (s *Service) triggers() chan struct{} {
	s.triggerOnce.Do(func() {
		s.trigger = make(chan struct{}, 1)
	})
	return s.trigger
}

// UpdateServers binds a listener to every new eligible address and stops the
// listeners of addresses that went away. Unchanged addresses keep their listener.
// If the addresses cannot be listed nothing is changed.
func (s *Service) UpdateServers(ctx context.Context) error {
	addrs, err := s.Interfaces.Addresses(ctx)
	if err != nil {
		err = fmt.Errorf("failed to list interface addresses: %w", err)
		s.Log.Error(err, "keeping current listeners")
		s.recorder().RecordReconcile(err)
		return err
	}
	want := eligible(addrs)
	if s.servers == nil {
		s.servers = make(map[string]Listener)
	}

	var errs []error
	for _, name := range sortedKeys(s.servers) {
		if _, ok := want[name]; ok {
			continue
		}
		if err := s.servers[name].Stop(); err != nil {
			s.Log.Error(err, "failed to stop listener", "name", name)
			errs = append(errs, err)
		}
		delete(s.servers, name)
	}
	for _, name := range sortedKeys(want) {
		if _, ok := s.servers[name]; ok {
			continue
		}
		l := s.newListener(name, netaddr.IPPortFrom(want[name], s.Port))
		if err := l.Start(); err != nil {
			// not recorded, the next pass tries again.
			s.Log.Error(err, "failed to start listener", "name", name)
			errs = append(errs, err)
			continue
		}
		s.servers[name] = l
	}

	s.recorder().SetListeners(len(s.servers))
	err = errors.Join(errs...)
	s.recorder().RecordReconcile(err)
	return err
}

// Servers returns the names of the running listeners, sorted.
// Like UpdateServers it must not race with a reconciliation pass.
func (s *Service) Servers() []string {
	return sortedKeys(s.servers)
}

func (s *Service) newListener(name string, addr netaddr.IPPort) Listener {
	if s.NewListener != nil {
		return s.NewListener(name, addr)
	}
	l := NewUDPListener(name, addr, s.Backend, s.Log)
	l.Timeout, l.Retries = s.Timeout, s.Retries
	return l
}

func (s *Service) stopAll() error {
	var g errgroup.Group
	for name, l := range s.servers {
		g.Go(func() error {
			if err := l.Stop(); err != nil {
				return fmt.Errorf("failed to stop listener %s: %w", name, err)
			}
			return nil
		})
	}
	err := g.Wait()
	s.servers = nil
	s.recorder().SetListeners(0)
	return err
}

func (s *Service) recorder() metrics.Recorder {
	if s.Metrics == nil {
		return metrics.NewNoop()
	}
	return s.Metrics
}

// eligible parses addrs and drops link-local and unparsable ones, keyed by address string.
func eligible(addrs []string) map[string]netaddr.IP {
	m := make(map[string]netaddr.IP, len(addrs))
	for _, a := range addrs {
		ip, err := netaddr.ParseIP(a)
		if err != nil {
			continue
		}
		ip = ip.Unmap()
		// 169.254.0.0/16 and fe80::/10.
		if ip.IsLinkLocalUnicast() {
			continue
		}
		m[ip.String()] = ip
	}
	return m
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

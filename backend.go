package tftpboot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/jacobweinstock/tftpboot/bootmethod"
	"github.com/jacobweinstock/tftpboot/event"
	"github.com/jacobweinstock/tftpboot/metrics"
	"inet.af/netaddr"
)

// ErrNotFound is matched by errors.Is for every missing or out of root static path.
var ErrNotFound = errors.New("file not found")

// eventTimeout bounds how long a single audit event may take to send.
const eventTimeout = 10 * time.Second

type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("file not found: %s", e.Path)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound || target == fs.ErrNotExist
}

// ParameterFetcher gets the boot parameters document at a generator URL.
type ParameterFetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// MACResolver finds the hardware address of a remote IP.
type MACResolver interface {
	Lookup(ctx context.Context, ip netaddr.IP) (net.HardwareAddr, bool)
}

// Backend answers TFTP read requests. Static files come from Root; paths matched
// by a boot method are rendered from parameters fetched from the Generator URL.
// Exported fields must not be changed once the Backend is serving.
type Backend struct {
	Root        string
	Generator   *url.URL
	ClusterUUID string
	Methods     bootmethod.Registry
	Fetcher     ParameterFetcher
	Events      event.Reporter
	MACs        MACResolver
	Metrics     metrics.Recorder
	Log         logr.Logger

	events sync.WaitGroup
}

// NewBackend returns a Backend serving root with the default boot methods.
// Fetcher, Events and MACs are left for the caller to set.
func NewBackend(root, generator string) (*Backend, error) {
	u, err := url.Parse(generator)
	if err != nil {
		return nil, fmt.Errorf("failed to parse generator url: %w", err)
	}
	return &Backend{
		Root:      root,
		Generator: u,
		Methods:   bootmethod.Default(),
		Metrics:   metrics.NewNoop(),
		Log:       logr.Discard(),
	}, nil
}

// CanRead is always true.
func (b *Backend) CanRead() bool { return true }

// CanWrite is always false, boot firmware never uploads.
func (b *Backend) CanWrite() bool { return false }

// GetReader returns a Reader for p. The caller must Close it.
func (b *Backend) GetReader(ctx context.Context, p string) (Reader, error) {
	start := time.Now()
	// some firmware sends backslash separated paths, bootx64.efi being the usual one.
	p = strings.ReplaceAll(p, `\`, "/")

	ep := endpointsFrom(ctx)
	mac := b.remoteMAC(ctx, ep.remote.IP())
	if mac != nil {
		b.report(ctx, event.Event{
			Type:        event.TypeBootRequest,
			MACAddress:  mac.String(),
			Description: fmt.Sprintf("TFTP request: %s", p),
		})
	}

	m, ok := b.Methods.Lookup(p)
	if !ok {
		r, err := b.openStatic(p)
		b.record(metrics.KindStatic, start, err)
		return r, err
	}

	params := m.ExtractParams(p)
	if params == nil {
		params = bootmethod.Params{}
	}
	bootmethod.NormalizeArch(params)
	if _, ok := params["mac"]; !ok && mac != nil {
		params["mac"] = mac.String()
	}
	if !ep.local.IP().IsZero() {
		params["local"] = addressOnly(ep.local.IP())
	}
	if !ep.remote.IP().IsZero() {
		params["remote"] = addressOnly(ep.remote.IP())
	}
	if b.ClusterUUID != "" {
		params["cluster_uuid"] = b.ClusterUUID
	}
	b.Log.V(1).Info("dynamic request", "path", p, "method", m.Name(), "params", params)
	r, err := b.BootMethodReader(ctx, m, params)
	b.record(metrics.KindDynamic, start, err)
	return r, err
}

// GeneratorURL returns the generator URL with params merged into its query.
// A param replaces a query value of the same key.
func (b *Backend) GeneratorURL(params bootmethod.Params) string {
	u := *b.Generator
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (b *Backend) openStatic(p string) (Reader, error) {
	rel := path.Clean(strings.TrimLeft(p, "/"))
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return nil, &NotFoundError{Path: p}
	}
	root, err := os.OpenRoot(b.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to open root %s: %w", b.Root, err)
	}
	defer root.Close()
	f, err := root.Open(rel)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("failed to open %s: %w", p, err)
		}
		// missing, or a symlink leading out of the root.
		return nil, &NotFoundError{Path: p}
	}
	r, err := NewFileReader(f)
	if err != nil {
		return nil, &NotFoundError{Path: p}
	}
	return r, nil
}

func (b *Backend) remoteMAC(ctx context.Context, ip netaddr.IP) net.HardwareAddr {
	if b.MACs == nil || ip.IsZero() {
		return nil
	}
	mac, ok := b.MACs.Lookup(ctx, ip.WithZone(""))
	if !ok {
		return nil
	}
	return mac
}

// report sends e in the background. Failures are logged and otherwise ignored.
func (b *Backend) report(ctx context.Context, e event.Event) {
	if b.Events == nil {
		return
	}
	b.events.Add(1)
	go func() {
		defer b.events.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
		defer cancel()
		if err := b.Events.Report(ctx, e); err != nil {
			b.Log.V(1).Info("failed to report event", "mac", e.MACAddress, "error", err.Error())
		}
	}()
}

// Wait blocks until every event reported so far has been sent or has failed.
func (b *Backend) Wait() {
	b.events.Wait()
}

func (b *Backend) record(kind string, start time.Time, err error) {
	if b.Metrics == nil {
		return
	}
	outcome := metrics.OutcomeOK
	switch {
	case errors.Is(err, ErrNotFound):
		outcome = metrics.OutcomeNotFound
	case err != nil:
		outcome = metrics.OutcomeError
	}
	b.Metrics.RecordRequest(kind, outcome, time.Since(start))
}

// addressOnly drops the IPv6 zone, the port is already gone.
func addressOnly(ip netaddr.IP) string {
	return ip.WithZone("").String()
}

type endpointsKey struct{}

type endpoints struct {
	local, remote netaddr.IPPort
}

// WithEndpoints returns a context carrying the local and remote addresses of a request.
func WithEndpoints(ctx context.Context, local, remote netaddr.IPPort) context.Context {
	return context.WithValue(ctx, endpointsKey{}, endpoints{local: local, remote: remote})
}

func endpointsFrom(ctx context.Context) endpoints {
	ep, _ := ctx.Value(endpointsKey{}).(endpoints)
	return ep
}

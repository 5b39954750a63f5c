// Package file serves boot parameters from a local YAML file instead of the controller.
//
// The file maps MAC addresses to boot parameters. An optional "default" record
// is used for machines without their own record:
//
//	"aa:bb:cc:dd:ee:ff":
//	  arch: amd64
//	  subarch: generic
//	  release: trusty
//	  label: release
//	  purpose: install
//	default:
//	  purpose: local
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/ghodss/yaml"
	"github.com/go-logr/logr"
	"github.com/jacobweinstock/tftpboot/data"
)

// DefaultRecord is the key of the record used when no MAC specific one exists.
const DefaultRecord = "default"

type Conn struct {
	DataMu   sync.RWMutex
	Data     []byte
	FilePath string
	Watcher  *fsnotify.Watcher
	Log      logr.Logger
}

// NewFile reads f and sets up a watcher on it. Call StartWatcher to pick up changes.
func NewFile(f string, l logr.Logger) (*Conn, error) {
	d, err := readfile(f)
	if err != nil {
		return nil, err
	}
	if _, err := parse(d); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(f); err != nil {
		watcher.Close()
		return nil, err
	}

	return &Conn{
		FilePath: f,
		Data:     d,
		Watcher:  watcher,
		Log:      l,
	}, nil
}

// Get returns the JSON encoded boot parameters for the mac query parameter of u.
// Fields the record leaves empty are filled from the arch and subarch query parameters.
func (c *Conn) Get(_ context.Context, u string) ([]byte, error) {
	pu, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("failed to parse generator url: %w", err)
	}
	q := pu.Query()

	c.DataMu.RLock()
	d := c.Data
	c.DataMu.RUnlock()
	records, err := parse(d)
	if err != nil {
		return nil, err
	}

	r, found := lookup(records, q.Get("mac"))
	if !found {
		return nil, fmt.Errorf("no record found for mac %q", q.Get("mac"))
	}
	if r.Arch == "" {
		r.Arch = q.Get("arch")
	}
	if r.Subarch == "" {
		r.Subarch = q.Get("subarch")
	}
	return json.Marshal(r)
}

func lookup(records map[string]data.BootParameters, mac string) (data.BootParameters, bool) {
	if hw, err := net.ParseMAC(mac); err == nil {
		for k, v := range records {
			if strings.EqualFold(k, hw.String()) {
				// found a record for this mac address
				return v, true
			}
		}
	}
	v, ok := records[DefaultRecord]
	return v, ok
}

func parse(d []byte) (map[string]data.BootParameters, error) {
	r := make(map[string]data.BootParameters)
	if err := yaml.Unmarshal(d, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return r, nil
}

func readfile(filePath string) ([]byte, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read data from file: %w", err)
	}
	return d, nil
}

// StartWatcher reloads the file on every write until ctx is done or the watcher is closed.
func (c *Conn) StartWatcher(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-c.Watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				c.Log.Info("file changed, updating cache")
				d, err := readfile(c.FilePath)
				if err != nil {
					c.Log.Error(err, "failed to read file", "file", c.FilePath)
					break
				}
				c.DataMu.Lock()
				c.Data = d
				c.DataMu.Unlock()
			}
		case err, ok := <-c.Watcher.Errors:
			if !ok {
				return
			}
			c.Log.Error(err, "error watching file", "file", c.FilePath)
		}
	}
}

// Close stops the watcher.
func (c *Conn) Close() error {
	return c.Watcher.Close()
}

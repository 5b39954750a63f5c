// Package event reports audit events about boot requests to the controller.
package event

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-logr/logr"
)

// TypeBootRequest is the event type recorded when a known machine requests a file.
const TypeBootRequest = "boot request"

type Event struct {
	Type        string `json:"event_type"`
	MACAddress  string `json:"mac_address"`
	Description string `json:"description"`
}

// Reporter sends an Event somewhere. Callers treat errors as best-effort.
type Reporter interface {
	Report(ctx context.Context, e Event) error
}

// Log writes events to a logr.Logger.
type Log struct {
	Log logr.Logger
}

func (l Log) Report(_ context.Context, e Event) error {
	l.Log.Info("event", "type", e.Type, "mac", e.MACAddress, "description", e.Description)
	return nil
}

// HTTP posts events as JSON to a controller endpoint.
type HTTP struct {
	URL    string
	Client *http.Client
}

func (h HTTP) Report(ctx context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c := h.Client
	if c == nil {
		c = http.DefaultClient
	}
	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("controller rejected event: %s", resp.Status)
	}
	return nil
}

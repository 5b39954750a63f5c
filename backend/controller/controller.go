// Package controller fetches boot parameters from the central controller over HTTP.
package controller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jacobweinstock/tftpboot/backend/controller"

// maxBody caps the size of a boot parameters document.
const maxBody = 1 << 20

// StatusError is returned when the controller answers with a non-2xx status.
type StatusError struct {
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("controller returned %s for %s", e.Status, e.URL)
}

type Conn struct {
	Client *http.Client
	Log    logr.Logger
}

// New returns a Conn whose requests time out after timeout. Zero means no timeout.
func New(timeout time.Duration, l logr.Logger) *Conn {
	return &Conn{Client: &http.Client{Timeout: timeout}, Log: l}
}

// Get does a single GET of u and returns the body. There are no retries.
func (c *Conn) Get(ctx context.Context, u string) ([]byte, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "controller.Get",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", u)),
	)
	defer span.End()

	b, err := c.get(ctx, u)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return b, nil
}

func (c *Conn) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	c.Log.V(1).Info("fetching boot parameters", "url", u)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch boot parameters: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, &StatusError{URL: u, Code: resp.StatusCode, Status: resp.Status}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read boot parameters: %w", err)
	}
	return b, nil
}

package tftpboot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jacobweinstock/tftpboot/bootmethod"
	"github.com/jacobweinstock/tftpboot/data"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jacobweinstock/tftpboot"

// errNoFetcher is returned for dynamic requests when the Backend has no ParameterFetcher.
var errNoFetcher = errors.New("no boot parameter fetcher configured")

// BootMethodReader fetches the boot parameters for params from the generator,
// renders them with m and returns the result. Any failure fails the whole request.
func (b *Backend) BootMethodReader(ctx context.Context, m bootmethod.Method, params bootmethod.Params) (Reader, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "BootMethodReader",
		trace.WithAttributes(attribute.String("boot.method", m.Name()), attribute.String("boot.mac", params["mac"])),
	)
	defer span.End()

	out, err := b.render(ctx, m, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return NewBytesReader(out), nil
}

func (b *Backend) render(ctx context.Context, m bootmethod.Method, params bootmethod.Params) ([]byte, error) {
	if b.Fetcher == nil {
		return nil, errNoFetcher
	}
	u := b.GeneratorURL(params)
	body, err := b.Fetcher.Get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("failed to get boot parameters: %w", err)
	}
	var kp data.BootParameters
	if err := json.Unmarshal(body, &kp); err != nil {
		return nil, fmt.Errorf("failed to decode boot parameters from %s: %w", u, err)
	}
	out, err := m.Render(ctx, bootmethod.RenderContext{Root: b.Root, Kernel: kp, Params: params})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Package rbridgectl provides a convenient control-plane API on top of the
// rbridge package: enable/disable, nickname and tree-root configuration,
// and batch neighbor reconciliation, each wrapped in a trace span and
// logged through a structured logger.
package rbridgectl

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/go-trill/rbridge"
	"github.com/go-trill/rbridge/internal/configloader"
	"github.com/go-trill/rbridge/internal/logging"
	"github.com/go-trill/rbridge/internal/telemetry"
)

var tracer = otel.Tracer("github.com/go-trill/rbridge/rbridgectl")

// Config is the on-disk configuration for a Controller, loaded via
// configloader.LoadYAML.
type Config struct {
	Logging  logging.Config   `yaml:"logging"`
	Tracing  telemetry.Config `yaml:"tracing"`
	HopCount uint8            `yaml:"hop_count"`
	VNT      bool             `yaml:"vnt"`
}

// LoadConfig reads a Config from a YAML file at path.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if err := configloader.LoadYAML(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Controller is the control-plane-facing wrapper around one bridge's
// rbridge.RbrState.
type Controller struct {
	bridge        *rbridge.Bridge
	log           *zap.Logger
	cfg           Config
	shutdownTrace func(context.Context) error
}

// New dials a Controller for bridge, built from cfg. It does not itself
// enable TRILL; call Enable once the bridge's collaborators are attached.
func New(bridge *rbridge.Bridge, cfg Config) (*Controller, error) {
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("rbridgectl: build logger: %w", err)
	}
	shutdownTrace, err := telemetry.Init(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("rbridgectl: build tracer provider: %w", err)
	}
	return &Controller{bridge: bridge, log: log, cfg: cfg, shutdownTrace: shutdownTrace}, nil
}

// Close flushes the controller's logger and shuts down its tracer provider.
func (c *Controller) Close() error {
	if err := c.shutdownTrace(context.Background()); err != nil {
		c.log.Warn("tracer provider shutdown failed", zap.Error(err))
	}
	// Sync on a stdout/stderr sink reliably fails with EINVAL on Linux;
	// that's not a real flush failure, so don't surface it as one.
	if err := c.log.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) {
		return err
	}
	return nil
}

// Enable turns TRILL on for the controller's bridge.
func (c *Controller) Enable(ctx context.Context) (*rbridge.RbrState, error) {
	_, span := tracer.Start(ctx, "rbridgectl.Enable")
	defer span.End()

	state, err := rbridge.Enable(c.bridge, c.cfg.HopCount, rbridge.Features{VNT: c.cfg.VNT})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.log.Error("enable failed", zap.Error(err))
		return nil, err
	}
	c.log.Info("TRILL enabled")
	return state, nil
}

// Disable turns TRILL off for the controller's bridge.
func (c *Controller) Disable(ctx context.Context) {
	_, span := tracer.Start(ctx, "rbridgectl.Disable")
	defer span.End()

	rbridge.Disable(c.bridge)
	c.log.Info("TRILL disabled")
}

// SetLocalNickname installs the bridge's own nickname.
func (c *Controller) SetLocalNickname(ctx context.Context, state *rbridge.RbrState, nick rbridge.Nickname) error {
	_, span := tracer.Start(ctx, "rbridgectl.SetLocalNickname", trace.WithAttributes(
		attribute.Int("nickname", int(nick)),
	))
	defer span.End()

	if err := state.SetLocalNickname(nick); err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.log.Warn("set local nickname failed", zap.Error(err), zap.Uint16("nickname", uint16(nick)))
		return err
	}
	return nil
}

// SetTreeRoot nominates the distribution-tree root.
func (c *Controller) SetTreeRoot(ctx context.Context, state *rbridge.RbrState, nick rbridge.Nickname) error {
	_, span := tracer.Start(ctx, "rbridgectl.SetTreeRoot", trace.WithAttributes(
		attribute.Int("nickname", int(nick)),
	))
	defer span.End()

	if err := state.SetTreeRoot(nick); err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.log.Warn("set tree root failed", zap.Error(err), zap.Uint16("nickname", uint16(nick)))
		return err
	}
	return nil
}

// NeighborSpec is one desired neighbor entry for ReconcileNeighbors.
type NeighborSpec struct {
	Nickname rbridge.Nickname
	Info     rbridge.NeighborInfo
}

// ReconcileNeighbors installs every entry in desired concurrently, using an
// errgroup so a single bad nickname doesn't block the rest of the batch
// from applying; it returns the first error encountered, if any, after all
// installs have been attempted.
func (c *Controller) ReconcileNeighbors(ctx context.Context, state *rbridge.RbrState, desired []NeighborSpec) error {
	ctx, span := tracer.Start(ctx, "rbridgectl.ReconcileNeighbors", trace.WithAttributes(
		attribute.Int("count", len(desired)),
	))
	defer span.End()

	g, _ := errgroup.WithContext(ctx)
	for _, spec := range desired {
		spec := spec
		g.Go(func() error {
			if err := state.InstallNeighbor(spec.Nickname, spec.Info); err != nil {
				c.log.Warn("install neighbor failed", zap.Error(err), zap.Uint16("nickname", uint16(spec.Nickname)))
				return err
			}
			return nil
		})
	}
	err := g.Wait()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// EvictNeighbor removes a single neighbor entry.
func (c *Controller) EvictNeighbor(ctx context.Context, state *rbridge.RbrState, nick rbridge.Nickname) error {
	_, span := tracer.Start(ctx, "rbridgectl.EvictNeighbor", trace.WithAttributes(
		attribute.Int("nickname", int(nick)),
	))
	defer span.End()

	if err := state.EvictNeighbor(nick); err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.log.Warn("evict neighbor failed", zap.Error(err), zap.Uint16("nickname", uint16(nick)))
		return err
	}
	return nil
}

package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"promptpilot/internal/config"
	"promptpilot/internal/credentials"
	"promptpilot/internal/enrich"
	"promptpilot/internal/metrics"
	"promptpilot/internal/models"
	"promptpilot/internal/provider"
)

// ErrNoMessages indicates a request without any conversation turns.
var ErrNoMessages = errors.New("request has no messages")

// Aggregator turns attachments into prompt context.
type Aggregator interface {
	Aggregate(ctx context.Context, attachments []models.Attachment) string
}

// Router dispatches requests to the adapter of the resolved provider family.
type Router struct {
	registry     *provider.Registry
	resolver     *credentials.Resolver
	aggregator   Aggregator
	defaultModel string
	native       map[string]struct{}
}

// New constructs a router. The routing tables are copied and never modified.
func New(registry *provider.Registry, resolver *credentials.Resolver, aggregator Aggregator, routing config.Routing) *Router {
	native := make(map[string]struct{}, len(routing.NativeAttachmentModels))
	for _, m := range routing.NativeAttachmentModels {
		native[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	return &Router{
		registry:     registry,
		resolver:     resolver,
		aggregator:   aggregator,
		defaultModel: strings.TrimSpace(routing.DefaultModel),
		native:       native,
	}
}

type preparedCall struct {
	kind    models.Provider
	adapter provider.Adapter
	req     models.ProviderRequest
}

// Route resolves the provider, enriches the prompt when needed and returns
// the complete response text.
func (r *Router) Route(ctx context.Context, req models.RouteRequest) (string, error) {
	call, err := r.prepare(ctx, req)
	if err != nil {
		return "", err
	}

	started := time.Now()
	text, err := call.adapter.Complete(ctx, call.req)
	metrics.ObserveRequest(call.kind.String(), metrics.ModeSync, started, err)
	if err != nil {
		return "", fmt.Errorf("provider %s request: %w", call.adapter.Name(), err)
	}
	return text, nil
}

// RouteStream is the streaming counterpart of Route. Failures are reported
// as a single failed fragment; the returned stream is never nil.
func (r *Router) RouteStream(ctx context.Context, req models.RouteRequest) models.Stream {
	call, err := r.prepare(ctx, req)
	if err != nil {
		return models.FailedStream(provider.StreamErrorPrefix + err.Error())
	}

	return &observedStream{
		inner:    call.adapter.Stream(ctx, call.req),
		provider: call.kind.String(),
		started:  time.Now(),
	}
}

// prepare holds the steps shared by the sync and stream paths. The caller's
// messages and attachments are never modified.
func (r *Router) prepare(ctx context.Context, req models.RouteRequest) (preparedCall, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = r.defaultModel
	}
	if len(req.Messages) == 0 {
		return preparedCall{}, ErrNoMessages
	}

	kind, key := r.resolver.Resolve(model, req.Keys)
	adapter, err := r.registry.Lookup(kind)
	if err != nil {
		return preparedCall{}, err
	}

	call := preparedCall{
		kind:    kind,
		adapter: adapter,
		req:     models.ProviderRequest{Model: model, APIKey: key},
	}

	if kind == models.ProviderGemini && r.supportsNativeAttachments(model) {
		call.req.Messages = append([]models.Message(nil), req.Messages...)
		call.req.Attachments = append([]models.Attachment(nil), req.Attachments...)
		return call, nil
	}

	var extracted string
	if len(req.Attachments) > 0 && r.aggregator != nil {
		extracted = r.aggregator.Aggregate(ctx, req.Attachments)
	}
	call.req.Messages = enrich.SplicePrompt(req.Messages, extracted)
	return call, nil
}

func (r *Router) supportsNativeAttachments(model string) bool {
	_, ok := r.native[strings.ToLower(model)]
	return ok
}

// observedStream records fragment and request metrics as the consumer drains.
// Close may be called from another goroutine while Next is running.
type observedStream struct {
	inner    models.Stream
	provider string
	started  time.Time

	once   sync.Once
	failed atomic.Bool
}

func (s *observedStream) Next() (models.Fragment, error) {
	f, err := s.inner.Next()
	if errors.Is(err, io.EOF) {
		s.finish()
		return f, err
	}
	if err != nil {
		s.failed.Store(true)
		s.finish()
		return f, err
	}
	if f.Failed {
		s.failed.Store(true)
	}
	metrics.ObserveFragment(s.provider, f.Failed)
	return f, nil
}

func (s *observedStream) Close() error {
	s.finish()
	return s.inner.Close()
}

func (s *observedStream) finish() {
	s.once.Do(func() {
		var err error
		if s.failed.Load() {
			err = errors.New("stream failed")
		}
		metrics.ObserveRequest(s.provider, metrics.ModeStream, s.started, err)
	})
}

// Package gateway coordinates one chat completion request: validation,
// prompt flattening, the backend call and response assembly.
package gateway

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/samsaffron/claude-gateway/internal/completion"
	"github.com/samsaffron/claude-gateway/internal/idgen"
	"github.com/samsaffron/claude-gateway/internal/llm"
	"github.com/samsaffron/claude-gateway/internal/openai"
	"github.com/samsaffron/claude-gateway/internal/prompt"
)

// Options are the execution settings applied to every backend call.
type Options struct {
	MaxTurns         int
	AllowedTools     []string
	AutoDenyTools    bool
	WorkingDirectory string
	DefaultModel     string
}

// Orchestrator holds only read-only state and is safe for concurrent use.
type Orchestrator struct {
	provider    llm.Provider
	opts        Options
	defaultTier llm.Tier
	ids         idgen.Generator
	log         logrus.FieldLogger
	now         func() time.Time
}

// New builds an orchestrator. ids and log may be nil.
func New(provider llm.Provider, opts Options, ids idgen.Generator, log logrus.FieldLogger) *Orchestrator {
	if opts.DefaultModel == "" {
		opts.DefaultModel = llm.DefaultModel
	}
	if ids == nil {
		ids = idgen.UUID{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Orchestrator{
		provider:    provider,
		opts:        opts,
		defaultTier: llm.ResolveTier(opts.DefaultModel, llm.DefaultTier),
		ids:         ids,
		log:         log,
		now:         time.Now,
	}
}

// Call is a validated request ready to run.
type Call struct {
	Request      llm.Request
	Model        string
	Stream       bool
	IncludeUsage bool
	DroppedParts int
}

// Prepare validates a raw request body and builds the backend request.
// All failures are *openai.APIError values.
func (o *Orchestrator) Prepare(body []byte) (*Call, error) {
	req, err := openai.ParseChatRequest(body)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = o.opts.DefaultModel
	}
	tier := llm.ResolveTier(model, o.defaultTier)

	flat, err := prompt.Flatten(req.Messages)
	if err != nil {
		return nil, err
	}

	return &Call{
		Request: llm.Request{
			Prompt:           flat.Prompt,
			SystemPrompt:     flat.SystemPrompt,
			Model:            tier,
			MaxTurns:         o.opts.MaxTurns,
			AllowedTools:     o.opts.AllowedTools,
			AutoDenyTools:    o.opts.AutoDenyTools,
			WorkingDirectory: o.opts.WorkingDirectory,
		},
		Model:        model,
		Stream:       req.Stream,
		IncludeUsage: req.StreamOptions != nil && req.StreamOptions.IncludeUsage,
		DroppedParts: flat.DroppedParts,
	}, nil
}

func (o *Orchestrator) meta(call *Call) completion.Meta {
	return completion.Meta{
		ID:           o.ids.CompletionID(),
		Model:        call.Model,
		Created:      o.now().Unix(),
		IncludeUsage: call.IncludeUsage,
	}
}

func (o *Orchestrator) callLogger(ctx context.Context, call *Call, meta completion.Meta) logrus.FieldLogger {
	fields := logrus.Fields{
		"completion_id": meta.ID,
		"model":         call.Model,
		"tier":          string(call.Request.Model),
		"stream":        call.Stream,
		"backend":       o.provider.Name(),
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields["request_id"] = id
	}
	log := o.log.WithFields(fields)
	if call.DroppedParts > 0 {
		log.WithField("dropped_parts", call.DroppedParts).Debug("non-text content parts dropped from prompt")
	}
	return log
}

// Complete runs the backend to completion and returns one response object.
// Backend failures are returned as openai.BackendFailure.
func (o *Orchestrator) Complete(ctx context.Context, call *Call) (*openai.ChatCompletion, error) {
	meta := o.meta(call)
	log := o.callLogger(ctx, call, meta)
	start := o.now()

	stream, err := o.provider.Stream(ctx, call.Request)
	if err != nil {
		log.WithError(err).Error("backend failed to start")
		return nil, openai.BackendFailure(err)
	}
	resp, err := completion.Collect(ctx, stream, meta, o.ids.ToolCallID)
	if err != nil {
		log.WithError(err).Error("backend failed")
		return nil, openai.BackendFailure(err)
	}

	log.WithFields(logrus.Fields{
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
		"tool_calls":        len(resp.Choices[0].Message.ToolCalls),
		"duration":          o.now().Sub(start).String(),
	}).Info("completion finished")
	return resp, nil
}

// Stream runs the backend and writes chunks to w as events arrive. An error
// returned before anything was written (the backend failed to start) is a
// BackendFailure the caller can still render as a plain error response.
func (o *Orchestrator) Stream(ctx context.Context, call *Call, w completion.ChunkWriter) error {
	meta := o.meta(call)
	log := o.callLogger(ctx, call, meta)
	start := o.now()

	stream, err := o.provider.Stream(ctx, call.Request)
	if err != nil {
		log.WithError(err).Error("backend failed to start")
		return openai.BackendFailure(err)
	}
	if err := completion.Stream(ctx, stream, meta, w, o.ids.ToolCallID); err != nil {
		log.WithError(err).Warn("stream ended early")
		return err
	}
	log.WithField("duration", o.now().Sub(start).String()).Info("stream finished")
	return nil
}

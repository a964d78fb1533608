package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonathan/resume-pipeline/internal/llm"
	"github.com/jonathan/resume-pipeline/internal/rendering"
	"github.com/jonathan/resume-pipeline/internal/types"
)

// DefaultProviderTimeout bounds a single provider call
const DefaultProviderTimeout = 90 * time.Second

// Request is the input to one generation run
type Request struct {
	Profile        types.ProfileSnapshot
	JobDescription string
	Mode           types.GenerationMode
}

// Result is a normalized, typeset resume
type Result struct {
	Document     *types.ResumeDocument
	Typeset      string
	Template     string
	Provider     string
	FallbackUsed bool
	Attempts     []AttemptRecord
	Repairs      []string
}

// ProgressFunc receives coarse stage milestones
type ProgressFunc func(stage string)

// Observer records provider call outcomes
type Observer interface {
	ObserveProviderCall(provider, outcome string, latency time.Duration)
}

// Options configures an Orchestrator
type Options struct {
	Timeout  time.Duration
	Limits   Limits
	Renderer *rendering.Renderer
	Logger   *slog.Logger
	Observer Observer
}

// Orchestrator runs providers in order until one yields a usable document
type Orchestrator struct {
	providers []Provider
	timeout   time.Duration
	limits    Limits
	renderer  *rendering.Renderer
	logger    *slog.Logger
	observer  Observer
}

// New creates an Orchestrator; providers are tried in the given order
func New(providers []Provider, opts Options) (*Orchestrator, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultProviderTimeout
	}
	if opts.Renderer == nil {
		r, err := rendering.NewRenderer(rendering.DefaultTemplate)
		if err != nil {
			return nil, fmt.Errorf("failed to load resume template: %w", err)
		}
		opts.Renderer = r
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		providers: append([]Provider(nil), providers...),
		timeout:   opts.Timeout,
		limits:    opts.Limits.WithDefaults(),
		renderer:  opts.Renderer,
		logger:    opts.Logger,
		observer:  opts.Observer,
	}, nil
}

// Providers returns the provider names in fallback order
func (o *Orchestrator) Providers() []string {
	names := make([]string, len(o.providers))
	for i, p := range o.providers {
		names[i] = p.Name()
	}
	return names
}

// Generate drafts, normalizes, limits and typesets a resume.
// It returns *FailedError when no provider produced a usable document.
func (o *Orchestrator) Generate(ctx context.Context, req Request, progress ProgressFunc) (*Result, error) {
	o.report(ctx, progress, types.StageDrafting)

	if phrases := suspiciousPhrases(req.JobDescription); len(phrases) > 0 {
		o.logger.WarnContext(ctx, "job description contains instruction-like text", "phrases", phrases)
	}

	prompt, err := BuildPrompt(req, o.limits)
	if err != nil {
		return nil, err
	}

	var (
		winner   *Outcome
		failures []ProviderFailure
		attempts []AttemptRecord
	)
	for i, p := range o.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		outcome := o.attempt(ctx, p, prompt, req.Profile)
		if err := ctx.Err(); err != nil {
			// the caller gave up; not the provider's fault
			return nil, err
		}

		rec := outcome.Record(i > 0)
		attempts = append(attempts, rec)
		if o.observer != nil {
			o.observer.ObserveProviderCall(rec.Provider, rec.Outcome, outcome.Latency)
		}
		if outcome.IsOk() {
			winner = &outcome
			break
		}

		failures = append(failures, *outcome.Failure)
		o.logger.WarnContext(ctx, "generation provider failed",
			"provider", outcome.Provider,
			"kind", outcome.Failure.Kind,
			"message", outcome.Failure.Message,
			"latency_ms", outcome.Latency.Milliseconds())
	}

	if winner == nil {
		return nil, &FailedError{Failures: failures, Attempts: attempts}
	}

	doc := winner.Document
	repairs := o.limits.Apply(doc)

	o.report(ctx, progress, types.StageFormatting)

	typeset, err := o.renderer.RenderLaTeX(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to typeset resume: %w", err)
	}

	return &Result{
		Document:     doc,
		Typeset:      typeset,
		Template:     o.renderer.Name(),
		Provider:     winner.Provider,
		FallbackUsed: len(attempts) > 1,
		Attempts:     attempts,
		Repairs:      repairs,
	}, nil
}

func (o *Orchestrator) attempt(ctx context.Context, p Provider, prompt string, profile types.ProfileSnapshot) Outcome {
	name := p.Name()
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	raw, err := p.Generate(callCtx, prompt)
	latency := time.Since(start)
	if err != nil {
		pe := llm.Classify(name, err)
		return Err(ProviderFailure{
			Provider:   name,
			Kind:       pe.Kind,
			StatusCode: pe.StatusCode,
			Message:    pe.Error(),
			Detail:     pe.Body,
		}, latency)
	}

	doc, err := Normalize(raw, profile)
	if err != nil {
		f := ProviderFailure{Provider: name, Kind: llm.KindInvalidOutput, Message: err.Error()}
		var ioe *InvalidOutputError
		if errors.As(err, &ioe) {
			f.Detail = truncate(raw, 4<<10)
		}
		return Err(f, latency)
	}
	return Ok(name, doc, latency)
}

// report invokes progress without letting a misbehaving callback fail generation
func (o *Orchestrator) report(ctx context.Context, progress ProgressFunc, stage string) {
	if progress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.WarnContext(ctx, "progress callback panicked", "stage", stage, "panic", r)
		}
	}()
	progress(stage)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

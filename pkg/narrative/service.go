package narrative

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	pmerrors "github.com/logflow/pmlens/pkg/errors"
)

// Result is the outcome of one generation. Text is always set: on failure it
// holds the fallback message and Err the ExternalServiceFailure.
type Result struct {
	Text   string `json:"text"`
	Model  string `json:"model"`
	Cached bool   `json:"cached"`
	Err    error  `json:"-"`
}

// Failed reports whether the model call failed.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// Service wraps a Completer with caching, an overall deadline and the
// failure fallback.
type Service struct {
	completer Completer
	cache     Cache
	timeout   time.Duration
	logger    *zap.Logger
}

// NewService creates a service. cache may be nil.
func NewService(completer Completer, cache Cache, timeout time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		completer: completer,
		cache:     cache,
		timeout:   timeout,
		logger:    logger,
	}
}

// Generate returns the narrative for prompt. A failing model never fails the
// caller; the returned Result carries the fallback text instead.
func (s *Service) Generate(ctx context.Context, prompt string) *Result {
	res := &Result{Model: s.completer.Model()}
	key := CacheKey(res.Model, prompt)

	if s.cache != nil {
		text, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			s.logger.Warn("narrative cache read failed", zap.Error(pmerrors.Wrap(err, pmerrors.CodeCache, "cache get")))
		case ok:
			s.logger.Debug("narrative served from cache", zap.String("key", key[:12]))
			res.Text = text
			res.Cached = true
			return res
		}
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := s.completer.Complete(callCtx, prompt)
	if err != nil {
		wrapped := pmerrors.ExternalService("chat-completions", err).
			WithContext("timed_out", errors.Is(err, context.DeadlineExceeded))
		s.logger.Warn("narrative generation failed",
			zap.String("model", res.Model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		res.Text = Fallback(err)
		res.Err = wrapped
		return res
	}

	s.logger.Info("narrative generated",
		zap.String("model", res.Model),
		zap.Int("chars", len(text)),
		zap.Duration("elapsed", time.Since(start)),
	)
	res.Text = text

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, text); err != nil {
			s.logger.Warn("narrative cache write failed", zap.Error(pmerrors.Wrap(err, pmerrors.CodeCache, "cache set")))
		}
	}
	return res
}

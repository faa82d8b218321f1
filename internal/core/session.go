package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikey-austin/clautify/internal/ports"
	"github.com/mikey-austin/clautify/pkg/dsl"
)

// Session parses and executes command lines against one account.
type Session struct {
	backend  ports.Backend
	executor *Executor
}

// NewSession creates a session. With opts.Eager the playback channel is
// built immediately.
func NewSession(ctx context.Context, backend ports.Backend, opts Options) (*Session, error) {
	executor, err := NewExecutor(ctx, backend, opts)
	if err != nil {
		return nil, wrapError(dsl.Command{}, err)
	}
	return &Session{backend: backend, executor: executor}, nil
}

// Run parses text and executes the resulting command.
func (s *Session) Run(ctx context.Context, text string) (Result, error) {
	cmd, err := dsl.Parse(text)
	if err != nil {
		return Result{}, syntaxError(text, err)
	}
	return s.executor.Execute(ctx, cmd)
}

// Execute runs an already parsed command.
func (s *Session) Execute(ctx context.Context, cmd dsl.Command) (Result, error) {
	return s.executor.Execute(ctx, cmd)
}

// Health checks the session token with the catalog.
func (s *Session) Health(ctx context.Context) HealthResult {
	if err := s.backend.CheckAuth(ctx); err != nil {
		return HealthResult{Status: "error", Authenticated: false, Error: err.Error()}
	}
	return HealthResult{Status: StatusOK, Authenticated: true}
}

// VolumeCeiling returns the maximum volume fraction.
func (s *Session) VolumeCeiling() float64 {
	return s.executor.VolumeCeiling()
}

// SetVolumeCeiling sets the maximum volume fraction, clamped to [0,1].
func (s *Session) SetVolumeCeiling(v float64) {
	s.executor.SetVolumeCeiling(v)
}

// Close releases the playback channel.
func (s *Session) Close() error {
	return s.executor.Close()
}

func syntaxError(text string, err error) *DSLError {
	var synErr *dsl.SyntaxError
	if errors.As(err, &synErr) {
		return &DSLError{
			Kind:   ErrSyntax,
			Msg:    fmt.Sprintf("Invalid command: '%s'. Valid commands: %s", text, dsl.Usage),
			Detail: synErr.Error(),
			Err:    err,
		}
	}
	return &DSLError{Kind: ErrSyntax, Msg: fmt.Sprintf("Parse error: %v", err), Err: err}
}

package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mikey-austin/clautify/internal/ports"
	"github.com/mikey-austin/clautify/pkg/dsl"
)

func TestExitAndReplyCodes(t *testing.T) {
	tests := []struct {
		kind  ErrorKind
		exit  int
		reply string
	}{
		{ErrSyntax, ExitUsage, "INVALID"},
		{ErrInvalidVolume, ExitUsage, "INVALID"},
		{ErrUnsupported, ExitUsage, "INVALID"},
		{ErrUnsupportedQueueKind, ExitUsage, "INVALID"},
		{ErrUnknownAction, ExitUsage, "INVALID"},
		{ErrUnknownQuery, ExitUsage, "INVALID"},
		{ErrMalformedCommand, ExitUsage, "INVALID"},
		{ErrNoResults, ExitNotFound, "NOT_FOUND"},
		{ErrDeviceNotFound, ExitNotFound, "NOT_FOUND"},
		{ErrTransientChannel, ExitRuntime, "UNAVAILABLE"},
		{ErrVolumeUnavailable, ExitRuntime, "UNAVAILABLE"},
		{ErrCollaborator, ExitRuntime, "ERROR"},
	}
	for _, test := range tests {
		err := newError(test.kind, "message")
		if got := ExitCode(err); got != test.exit {
			t.Fatalf("kind %s expected exit %d got %d", test.kind, test.exit, got)
		}
		if got := ReplyCode(err); got != test.reply {
			t.Fatalf("kind %s expected reply %s got %s", test.kind, test.reply, got)
		}
	}
	if ExitCode(nil) != ExitOK {
		t.Fatalf("expected ok for nil")
	}
	if ExitCode(WrapError(ExitUsage, "bad flag", errors.New("x"))) != ExitUsage {
		t.Fatalf("expected cli error code")
	}
}

type lostError struct{}

func (lostError) Error() string { return "websocket closed" }
func (lostError) Unwrap() error { return ports.ErrChannelLost }

func TestWrapErrorClassifies(t *testing.T) {
	cmd := dsl.Command{Action: dsl.ActionPause}

	err := wrapError(cmd, lostError{})
	dslErr := expectKind(t, err, ErrTransientChannel)
	if dslErr.Msg != "lostError: websocket closed" {
		t.Fatalf("unexpected message %q", dslErr.Msg)
	}
	if !IsTransient(err) {
		t.Fatalf("expected transient")
	}

	err = wrapError(cmd, fmt.Errorf("catalog: %w", errors.New("boom")))
	dslErr = expectKind(t, err, ErrCollaborator)
	if dslErr.Command == nil || dslErr.Command.Action != dsl.ActionPause {
		t.Fatalf("expected command on error")
	}
	if IsTransient(err) {
		t.Fatalf("collaborator errors are not transient")
	}
}

func TestWrapErrorKeepsDSLErrors(t *testing.T) {
	original := newError(ErrNoResults, "No results for %q", "x")
	cmd := dsl.Command{Query: dsl.QueryInfo}
	err := wrapError(cmd, original)
	if err != original {
		t.Fatalf("expected same error back")
	}
	if original.Command == nil || original.Command.Query != dsl.QueryInfo {
		t.Fatalf("expected command attached")
	}

	other := dsl.Command{Query: dsl.QuerySearch}
	wrapError(other, original)
	if original.Command.Query != dsl.QueryInfo {
		t.Fatalf("existing command must not be replaced")
	}
}

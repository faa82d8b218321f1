package mu

import (
	"encoding/json"
	"testing"
)

func TestValidateCommandEnvelope(t *testing.T) {
	cmd, err := NewCommand(TypeDSLRun, DSLRunBody{Command: "pause"})
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	cmd.ID = "id"
	cmd.TS = 1
	if err := ValidateCommandEnvelope(cmd); err == nil {
		t.Fatalf("expected from error")
	}

	cmd.From = "tester"
	if err := ValidateCommandEnvelope(cmd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cmd.Body = []byte("{not json")
	if err := ValidateCommandEnvelope(cmd); err == nil {
		t.Fatalf("expected body error")
	}
}

func TestValidateCommandEnvelopeMissingFields(t *testing.T) {
	cmd := CommandEnvelope{}
	if err := ValidateCommandEnvelope(cmd); err == nil {
		t.Fatalf("expected error")
	}
}

func TestReplies(t *testing.T) {
	cmd := CommandEnvelope{ID: "abc", Type: TypeDSLRun}
	reply, err := NewReply(cmd, 10, DSLRunReply{Result: json.RawMessage(`{"status":"ok"}`)})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if !reply.OK || reply.ID != "abc" || string(reply.Body) != `{"result":{"status":"ok"}}` {
		t.Fatalf("unexpected reply %+v", reply)
	}

	failed := NewErrorReply(cmd, 10, CodeNotFound, "No results")
	if failed.OK || failed.Err.Code != CodeNotFound {
		t.Fatalf("unexpected error reply %+v", failed)
	}
	if failed.Err.Error() != "NOT_FOUND: No results" {
		t.Fatalf("unexpected message %q", failed.Err.Error())
	}
}

func TestCommandMutatesPlayback(t *testing.T) {
	if CommandMutatesPlayback(TypeStateGet) || CommandMutatesPlayback(TypeDSLRun) {
		t.Fatalf("read commands must not mutate")
	}
	for _, typ := range []string{TypePause, TypeSetVolume, TypeTransfer, TypeQueueAdd} {
		if !CommandMutatesPlayback(typ) {
			t.Fatalf("%s should mutate", typ)
		}
	}
}

func TestTopics(t *testing.T) {
	if got := TopicCommands(BaseTopic, "node1"); got != "clautify/v1/node/node1/cmd" {
		t.Fatalf("unexpected topic %s", got)
	}
	if got := TopicReply(BaseTopic, "cli"); got != "clautify/v1/reply/cli" {
		t.Fatalf("unexpected topic %s", got)
	}
	if got := TopicPresenceAll(BaseTopic); got != "clautify/v1/node/+/presence" {
		t.Fatalf("unexpected topic %s", got)
	}
}

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mikey-austin/clautify/pkg/mu"
)

// Remote runs command lines on a daemon's DSL endpoint.
type Remote struct {
	Requester Requester
	NodeID    string
}

// Run sends text to the endpoint and returns the result mapping. A
// failed command comes back as *mu.ReplyError.
func (r Remote) Run(ctx context.Context, text string) (json.RawMessage, error) {
	reply, err := r.Requester.Request(ctx, r.NodeID, mu.TypeDSLRun, mu.DSLRunBody{Command: text})
	if err != nil {
		return nil, err
	}
	if !reply.OK {
		return nil, replyError(reply)
	}
	var body mu.DSLRunReply
	if err := json.Unmarshal(reply.Body, &body); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return body.Result, nil
}

// Health asks the endpoint whether its session is authenticated.
func (r Remote) Health(ctx context.Context) (mu.DSLHealthReply, error) {
	reply, err := r.Requester.Request(ctx, r.NodeID, mu.TypeDSLHealth, mu.EmptyBody{})
	if err != nil {
		return mu.DSLHealthReply{}, err
	}
	if !reply.OK {
		return mu.DSLHealthReply{}, replyError(reply)
	}
	var body mu.DSLHealthReply
	if err := json.Unmarshal(reply.Body, &body); err != nil {
		return mu.DSLHealthReply{}, fmt.Errorf("decode health: %w", err)
	}
	return body, nil
}

func replyError(reply mu.ReplyEnvelope) error {
	if reply.Err == nil {
		return &mu.ReplyError{Code: mu.CodeError, Message: "endpoint returned an error without detail"}
	}
	return reply.Err
}

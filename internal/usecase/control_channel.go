package usecase

import (
	"context"
	"errors"
	"log/slog"

	"souschef/internal/ports"
	"souschef/internal/protocol"
)

// RPCOutcome classifies a remote procedure invocation.
type RPCOutcome string

const (
	RPCSucceeded     RPCOutcome = "succeeded"
	RPCAgentNotFound RPCOutcome = "agent_not_found"
	RPCTimeout       RPCOutcome = "timeout"
	RPCFailed        RPCOutcome = "failed"
)

// RPCResult is returned for every invocation; calls never retry.
type RPCResult struct {
	Method   string
	Outcome  RPCOutcome
	Response string
	Err      error
}

func (r RPCResult) OK() bool {
	return r.Outcome == RPCSucceeded
}

// controlChannel invokes agent procedures over the room's RPC primitive.
type controlChannel struct {
	logger    *slog.Logger
	skipLevel slog.Level
	failLevel slog.Level
}

func newControlChannel(logger *slog.Logger) controlChannel {
	return controlChannel{logger: logger, skipLevel: slog.LevelWarn, failLevel: slog.LevelError}
}

// quiet returns a channel for best-effort calls whose failures only matter
// when debugging, such as cleanup while a session is ending.
func (c controlChannel) quiet() controlChannel {
	c.skipLevel = slog.LevelDebug
	c.failLevel = slog.LevelDebug
	return c
}

// Invoke calls method on the room's agent participant. A room without an
// agent is a skipped no-op, not an error for the caller.
func (c controlChannel) Invoke(ctx context.Context, room ports.Room, method string, payload any) RPCResult {
	result := RPCResult{Method: method}

	agent, ok := findAgent(room)
	if !ok {
		result.Outcome = RPCAgentNotFound
		c.logger.Log(ctx, c.skipLevel, "no agent participant; skipping rpc", "method", method)
		return result
	}

	body, err := protocol.EncodeRPCPayload(payload)
	if err != nil {
		result.Outcome = RPCFailed
		result.Err = err
		c.logger.Log(ctx, c.failLevel, "rpc payload encoding failed", "method", method, "error", err)
		return result
	}

	response, err := room.PerformRPC(ctx, ports.RPCRequest{
		Destination: agent.Identity,
		Method:      method,
		Payload:     body,
	})
	if err != nil {
		result.Err = err
		if errors.Is(err, ports.ErrRPCTimeout) || errors.Is(err, context.DeadlineExceeded) {
			result.Outcome = RPCTimeout
		} else {
			result.Outcome = RPCFailed
		}
		c.logger.Log(ctx, c.failLevel, "rpc failed", "method", method, "outcome", result.Outcome, "error", err)
		return result
	}

	result.Outcome = RPCSucceeded
	result.Response = response
	c.logger.Debug("rpc completed", "method", method, "agent", agent.Identity)
	return result
}

func findAgent(room ports.Room) (ports.Participant, bool) {
	if room == nil {
		return ports.Participant{}, false
	}
	for _, participant := range room.Participants() {
		if participant.Kind == ports.ParticipantKindAgent {
			return participant, true
		}
	}
	return ports.Participant{}, false
}

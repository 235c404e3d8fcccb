/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chainguard.dev/agentwatch/events"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Invocation is one request/response cycle of the agent within a session.
// It is opened by StartInvocation and closed exactly once by End.
type Invocation struct {
	ID string

	session   *Session
	span      oteltrace.Span
	input     string
	startTime time.Time
}

// StartInvocation opens an invocation for one user input. It emits the
// agent.start event and, when a tracer is configured, opens an agent.invoke
// span on the returned context so nested activities parent correctly.
func (s *Session) StartInvocation(ctx context.Context, input string) (*Invocation, context.Context) {
	var span oteltrace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, "agent.invoke")
		inputMsgs, _ := json.Marshal([]map[string]string{{"role": "user", "content": input}})
		span.SetAttributes(
			attribute.String("gen_ai.conversation.id", s.ID),
			attribute.String("gen_ai.agent.id", s.AgentID),
			attribute.String("gen_ai.agent.name", s.AgentName),
			attribute.String("gen_ai.operation.name", "invoke_agent"),
			attribute.String("gen_ai.input.messages", string(inputMsgs)),
		)
	}

	inv := &Invocation{
		ID:        uuid.New().String(),
		session:   s,
		span:      span,
		input:     input,
		startTime: time.Now(),
	}

	s.emit(ctx, &events.Event{
		Kind:      events.KindAgentStart,
		Timestamp: inv.startTime,
		Data: map[string]any{
			"invocation_id": inv.ID,
			"input":         input,
		},
	})

	return inv, ctx
}

// RecordThinking emits an agent.thinking event for internal reasoning
// produced during the invocation, and mirrors it onto the open span.
func (inv *Invocation) RecordThinking(ctx context.Context, thought string) {
	if inv.span != nil {
		inv.span.AddEvent("agent.thinking",
			oteltrace.WithAttributes(attribute.String("thought", thought)))
	}

	inv.session.emit(ctx, &events.Event{
		Kind:      events.KindThinking,
		Timestamp: time.Now(),
		Data: map[string]any{
			"invocation_id": inv.ID,
			"thought":       thought,
		},
	})
}

// End closes the invocation with the agent's output, emitting the agent.end
// event and closing the span. Calling End twice is undefined.
func (inv *Invocation) End(ctx context.Context, output string) {
	if inv.span != nil {
		outputMsgs, _ := json.Marshal([]map[string]string{{"role": "assistant", "content": output}})
		inv.span.SetAttributes(attribute.String("gen_ai.output.messages", string(outputMsgs)))
		inv.span.SetStatus(codes.Ok, "")
		inv.span.End()
	}

	inv.session.emit(ctx, &events.Event{
		Kind:      events.KindAgentEnd,
		Timestamp: time.Now(),
		Data: map[string]any{
			"invocation_id": inv.ID,
			"output":        output,
			"duration_ms":   time.Since(inv.startTime).Milliseconds(),
		},
	})
}

// ToolCall is one tool invocation within an Invocation.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any

	invocation *Invocation
	span       oteltrace.Span
	startTime  time.Time
}

// StartToolCall opens a tool call, emitting the tool.start event and
// opening a tool.<name> span when a tracer is configured.
func (inv *Invocation) StartToolCall(ctx context.Context, toolName string, args map[string]any) (*ToolCall, context.Context) {
	toolCallID := uuid.New().String()

	var span oteltrace.Span
	if tracer := inv.session.tracer; tracer != nil {
		ctx, span = tracer.Start(ctx, fmt.Sprintf("tool.%s", toolName))
		argsJSON, _ := json.Marshal(args)
		span.SetAttributes(
			attribute.String("gen_ai.conversation.id", inv.session.ID),
			attribute.String("gen_ai.operation.name", "execute_tool"),
			attribute.String("gen_ai.tool.name", toolName),
			attribute.String("gen_ai.tool.call.id", toolCallID),
			attribute.String("gen_ai.tool.call.arguments", string(argsJSON)),
		)
	}

	tc := &ToolCall{
		ID:         toolCallID,
		Name:       toolName,
		Args:       args,
		invocation: inv,
		span:       span,
		startTime:  time.Now(),
	}

	inv.session.emit(ctx, &events.Event{
		Kind:      events.KindToolStart,
		Timestamp: tc.startTime,
		Data: map[string]any{
			"invocation_id": inv.ID,
			"tool_call_id":  tc.ID,
			"tool_name":     toolName,
			"arguments":     args,
		},
	})

	return tc, ctx
}

// End closes the tool call. The emitted status is derived purely from err:
// "error" when one is supplied, "success" otherwise — never inferred from
// the result payload. Calling End twice is undefined.
func (tc *ToolCall) End(ctx context.Context, result any, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	if tc.span != nil {
		resultJSON, _ := json.Marshal(result)
		tc.span.SetAttributes(attribute.String("gen_ai.tool.call.result", string(resultJSON)))
		if err != nil {
			tc.span.RecordError(err)
			tc.span.SetStatus(codes.Error, err.Error())
		} else {
			tc.span.SetStatus(codes.Ok, "")
		}
		tc.span.End()
	}

	tc.invocation.session.emit(ctx, &events.Event{
		Kind:      events.KindToolEnd,
		Timestamp: time.Now(),
		Data: map[string]any{
			"invocation_id": tc.invocation.ID,
			"tool_call_id":  tc.ID,
			"tool_name":     tc.Name,
			"result":        result,
			"status":        status,
			"duration_ms":   time.Since(tc.startTime).Milliseconds(),
		},
	})
}

// ModelCall is one model (LLM) request within an Invocation.
type ModelCall struct {
	ID       string
	Provider string
	Model    string

	invocation *Invocation
	span       oteltrace.Span
	startTime  time.Time
}

// StartModelCall opens a model call, emitting the model.start event and
// opening a model.generate span when a tracer is configured.
func (inv *Invocation) StartModelCall(ctx context.Context, provider, model string) (*ModelCall, context.Context) {
	var span oteltrace.Span
	if tracer := inv.session.tracer; tracer != nil {
		ctx, span = tracer.Start(ctx, "model.generate")
		span.SetAttributes(
			attribute.String("gen_ai.conversation.id", inv.session.ID),
			attribute.String("gen_ai.operation.name", "chat"),
			attribute.String("gen_ai.provider.name", provider),
			attribute.String("gen_ai.request.model", model),
		)
	}

	mc := &ModelCall{
		ID:         uuid.New().String(),
		Provider:   provider,
		Model:      model,
		invocation: inv,
		span:       span,
		startTime:  time.Now(),
	}

	inv.session.emit(ctx, &events.Event{
		Kind:      events.KindModelStart,
		Timestamp: mc.startTime,
		Data: map[string]any{
			"invocation_id": inv.ID,
			"model_call_id": mc.ID,
			"provider":      provider,
			"model":         model,
		},
	})

	return mc, ctx
}

// End closes the model call with the response and token counts, recording
// usage on the span and emitting the model.end event. Calling End twice is
// undefined.
func (mc *ModelCall) End(ctx context.Context, response string, inputTokens, outputTokens int64) {
	if mc.span != nil {
		outputMsgs, _ := json.Marshal([]map[string]string{{"role": "assistant", "content": response}})
		mc.span.SetAttributes(
			attribute.String("gen_ai.output.messages", string(outputMsgs)),
			attribute.Int64("gen_ai.usage.input_tokens", inputTokens),
			attribute.Int64("gen_ai.usage.output_tokens", outputTokens),
		)
		mc.span.SetStatus(codes.Ok, "")
		mc.span.End()
	}

	mc.invocation.session.emit(ctx, &events.Event{
		Kind:      events.KindModelEnd,
		Timestamp: time.Now(),
		Data: map[string]any{
			"invocation_id": mc.invocation.ID,
			"model_call_id": mc.ID,
			"input_tokens":  inputTokens,
			"output_tokens": outputTokens,
			"duration_ms":   time.Since(mc.startTime).Milliseconds(),
		},
	})
}

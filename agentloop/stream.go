package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/frixaco/llm/unifiedllm"
)

// ErrStreamProtocol reports a provider stream that references tool calls
// inconsistently.
var ErrStreamProtocol = errors.New("stream protocol violation")

// TurnEventKind identifies the type of a TurnEvent.
type TurnEventKind string

const (
	TurnTextDelta        TurnEventKind = "text_delta"
	TurnToolCallStart    TurnEventKind = "tool_call_start"
	TurnToolCallArgDelta TurnEventKind = "tool_call_arg_delta"
	TurnToolCallComplete TurnEventKind = "tool_call_complete"
	TurnToolCallResult   TurnEventKind = "tool_call_result"
	TurnFinished         TurnEventKind = "finished"
	TurnProviderError    TurnEventKind = "provider_error"
)

// TurnEvent is one ordered event of a provider step.
//
// Text holds the fragment for TurnTextDelta and the full step text for
// TurnFinished. Call is set on TurnToolCallComplete and Result on
// TurnToolCallResult.
type TurnEvent struct {
	Kind         TurnEventKind
	Text         string
	CallID       string
	ToolName     string
	ArgsDelta    string
	Call         *unifiedllm.ToolCall
	Result       *ToolResult
	FinishReason string
	Usage        unifiedllm.Usage
	Err          error
}

type pendingCall struct {
	id    string
	name  string
	args  strings.Builder
	final json.RawMessage
	ended bool
}

func (p *pendingCall) call() unifiedllm.ToolCall {
	args := p.final
	if acc := strings.TrimSpace(p.args.String()); acc != "" {
		args = json.RawMessage(acc)
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return unifiedllm.ToolCall{ID: p.id, Name: p.name, Arguments: args}
}

// StreamConsumer turns the raw event channel of one provider step into
// ordered TurnEvents.
//
// Completed tool calls are surfaced in the order their start markers
// arrived; a completion for a later call is held until every earlier call
// has completed. Nothing is produced after TurnFinished or
// TurnProviderError.
type StreamConsumer struct {
	in    <-chan unifiedllm.StreamEvent
	queue []TurnEvent
	calls map[string]*pendingCall
	open  []*pendingCall // started, not yet surfaced, in start order
	text  strings.Builder
	done  bool
}

// NewStreamConsumer wraps the event channel of one provider step.
func NewStreamConsumer(in <-chan unifiedllm.StreamEvent) *StreamConsumer {
	return &StreamConsumer{
		in:    in,
		calls: make(map[string]*pendingCall),
	}
}

// Text returns the text received so far.
func (c *StreamConsumer) Text() string { return c.text.String() }

// Next returns the next event. It returns false once the terminal event
// has been delivered.
func (c *StreamConsumer) Next(ctx context.Context) (TurnEvent, bool) {
	for len(c.queue) == 0 {
		if c.done {
			return TurnEvent{}, false
		}
		// A cancelled step never finishes, even when the channel is already
		// closed or holds buffered events.
		if err := ctx.Err(); err != nil {
			c.fail(err)
			continue
		}
		select {
		case <-ctx.Done():
			c.fail(ctx.Err())
		case ev, ok := <-c.in:
			if !ok {
				if err := ctx.Err(); err != nil {
					c.fail(err)
				} else {
					c.finish(nil, nil)
				}
				continue
			}
			c.handle(ev)
		}
	}
	ev := c.queue[0]
	c.queue = c.queue[1:]
	return ev, true
}

func (c *StreamConsumer) handle(ev unifiedllm.StreamEvent) {
	switch ev.Type {
	case unifiedllm.TextDelta:
		if ev.Delta == "" {
			return
		}
		c.text.WriteString(ev.Delta)
		c.push(TurnEvent{Kind: TurnTextDelta, Text: ev.Delta})

	case unifiedllm.ToolCallStart:
		if ev.ToolCall == nil || ev.ToolCall.ID == "" {
			c.fail(fmt.Errorf("%w: tool call start without an id", ErrStreamProtocol))
			return
		}
		id := ev.ToolCall.ID
		if _, dup := c.calls[id]; dup {
			c.fail(fmt.Errorf("%w: duplicate tool call id %q", ErrStreamProtocol, id))
			return
		}
		p := &pendingCall{id: id, name: ev.ToolCall.Name}
		c.calls[id] = p
		c.open = append(c.open, p)
		c.push(TurnEvent{Kind: TurnToolCallStart, CallID: id, ToolName: p.name})

	case unifiedllm.ToolCallDelta:
		p := c.lookup(ev)
		if p == nil {
			return
		}
		if p.ended {
			c.fail(fmt.Errorf("%w: arguments for completed tool call %q", ErrStreamProtocol, p.id))
			return
		}
		if p.name == "" && ev.ToolCall.Name != "" {
			p.name = ev.ToolCall.Name
		}
		if ev.Delta == "" {
			return
		}
		p.args.WriteString(ev.Delta)
		c.push(TurnEvent{Kind: TurnToolCallArgDelta, CallID: p.id, ToolName: p.name, ArgsDelta: ev.Delta})

	case unifiedllm.ToolCallEnd:
		p := c.lookup(ev)
		if p == nil {
			return
		}
		if p.ended {
			c.fail(fmt.Errorf("%w: tool call %q completed twice", ErrStreamProtocol, p.id))
			return
		}
		if p.name == "" {
			p.name = ev.ToolCall.Name
		}
		p.final = ev.ToolCall.Arguments
		p.ended = true
		c.flush()

	case unifiedllm.StreamFinish:
		c.finish(ev.FinishReason, ev.Usage)

	case unifiedllm.StreamError:
		err := ev.Error
		if err == nil {
			err = &unifiedllm.StreamErrorType{SDKError: unifiedllm.SDKError{Message: "provider reported an error"}}
		}
		c.fail(err)
	}
}

func (c *StreamConsumer) lookup(ev unifiedllm.StreamEvent) *pendingCall {
	if ev.ToolCall == nil {
		c.fail(fmt.Errorf("%w: %s without a tool call", ErrStreamProtocol, ev.Type))
		return nil
	}
	p, ok := c.calls[ev.ToolCall.ID]
	if !ok {
		c.fail(fmt.Errorf("%w: unknown tool call id %q", ErrStreamProtocol, ev.ToolCall.ID))
		return nil
	}
	return p
}

// flush surfaces completed calls from the head of the open list.
func (c *StreamConsumer) flush() {
	for len(c.open) > 0 && c.open[0].ended {
		call := c.open[0].call()
		c.open = c.open[1:]
		c.push(TurnEvent{Kind: TurnToolCallComplete, CallID: call.ID, ToolName: call.Name, Call: &call})
	}
}

func (c *StreamConsumer) finish(reason *unifiedllm.FinishReason, usage *unifiedllm.Usage) {
	if c.done {
		return
	}
	// Calls still open at end of turn complete implicitly.
	for _, p := range c.open {
		p.ended = true
	}
	c.flush()

	ev := TurnEvent{Kind: TurnFinished, Text: c.text.String()}
	if reason != nil {
		ev.FinishReason = reason.Reason
	}
	if usage != nil {
		ev.Usage = *usage
	}
	c.push(ev)
	c.done = true
}

func (c *StreamConsumer) fail(err error) {
	if c.done {
		return
	}
	c.push(TurnEvent{Kind: TurnProviderError, Err: err})
	c.done = true
}

func (c *StreamConsumer) push(ev TurnEvent) {
	c.queue = append(c.queue, ev)
}

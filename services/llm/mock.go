// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MockClient is a scripted Client for tests.
//
// Free-text replies come from one queue. Typed replies are queued per
// schema name, so a test can script "classification", "plan", and
// "parameter_edits" answers independently of call order.
//
// Thread Safety:
//
//	MockClient is safe for concurrent use.
type MockClient struct {
	mu sync.Mutex

	model string

	// text holds queued free-text replies.
	text []mockReply

	// typed holds queued JSON replies keyed by schema name.
	typed map[string][]mockReply

	// defaultText is returned when the text queue is empty.
	defaultText string

	// responseFunc, when set, answers every call.
	responseFunc func(MockCall) (string, error)

	// errorToReturn fails every call.
	errorToReturn error

	calls []MockCall
}

// MockCall records one call made to the mock.
type MockCall struct {
	Messages []Message

	// Schema is empty for free-text calls.
	Schema string

	Timestamp time.Time
}

type mockReply struct {
	content string
	err     error
}

// NewMockClient creates a mock that answers "Mock response" by default.
func NewMockClient() *MockClient {
	return &MockClient{
		model:       "mock-model",
		typed:       make(map[string][]mockReply),
		defaultText: "Mock response",
	}
}

// WithModel sets the model name.
func (c *MockClient) WithModel(model string) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = model
	return c
}

// WithError configures the client to fail every call with err.
func (c *MockClient) WithError(err error) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorToReturn = err
	return c
}

// WithResponseFunc sets a dynamic response function used for every call.
func (c *MockClient) WithResponseFunc(f func(MockCall) (string, error)) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseFunc = f
	return c
}

// SetDefaultText sets the reply used when no text reply is queued.
func (c *MockClient) SetDefaultText(text string) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultText = text
	return c
}

// QueueText queues a free-text reply.
func (c *MockClient) QueueText(content string) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = append(c.text, mockReply{content: content})
	return c
}

// QueueTextError queues a failing free-text call.
func (c *MockClient) QueueTextError(err error) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = append(c.text, mockReply{err: err})
	return c
}

// QueueJSON queues v, marshalled, as the next reply for schemaName.
func (c *MockClient) QueueJSON(schemaName string, v any) *MockClient {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("mock: marshal queued reply: %v", err))
	}
	return c.QueueJSONRaw(schemaName, string(data))
}

// QueueJSONRaw queues raw text as the next reply for schemaName.
func (c *MockClient) QueueJSONRaw(schemaName, raw string) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typed[schemaName] = append(c.typed[schemaName], mockReply{content: raw})
	return c
}

// QueueJSONError queues a failing typed call for schemaName.
func (c *MockClient) QueueJSONError(schemaName string, err error) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typed[schemaName] = append(c.typed[schemaName], mockReply{err: err})
	return c
}

func (c *MockClient) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// Chat implements Client.
func (c *MockClient) Chat(ctx context.Context, messages []Message, _ GenerationParams) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	call := c.record(messages, "")
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.errorToReturn != nil {
		return "", c.errorToReturn
	}
	if c.responseFunc != nil {
		return c.responseFunc(call)
	}
	if len(c.text) > 0 {
		reply := c.text[0]
		c.text = c.text[1:]
		return reply.content, reply.err
	}
	return c.defaultText, nil
}

// ChatJSON implements Client.
func (c *MockClient) ChatJSON(ctx context.Context, messages []Message, schema Schema, _ GenerationParams) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	call := c.record(messages, schema.Name)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.errorToReturn != nil {
		return "", c.errorToReturn
	}
	if c.responseFunc != nil {
		return c.responseFunc(call)
	}
	queue := c.typed[schema.Name]
	if len(queue) == 0 {
		return "", fmt.Errorf("mock: no reply queued for schema %q", schema.Name)
	}
	reply := queue[0]
	c.typed[schema.Name] = queue[1:]
	return reply.content, reply.err
}

func (c *MockClient) record(messages []Message, schema string) MockCall {
	call := MockCall{
		Messages:  append([]Message(nil), messages...),
		Schema:    schema,
		Timestamp: time.Now(),
	}
	c.calls = append(c.calls, call)
	return call
}

// Calls returns a copy of every recorded call.
func (c *MockClient) Calls() []MockCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]MockCall(nil), c.calls...)
}

// CallCount returns how many calls used schema ("" counts free-text calls).
func (c *MockClient) CallCount(schema string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.Schema == schema {
			n++
		}
	}
	return n
}

var _ Client = (*MockClient)(nil)

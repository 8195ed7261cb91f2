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
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedClient throttles calls to a wrapped Client with a token bucket.
//
// A single chat turn fans out into several model calls (classify, plan,
// extract, answer, explain), so hosted backends hit their request quotas
// quickly under the HTTP service.
type RateLimitedClient struct {
	next    Client
	limiter *rate.Limiter
}

// NewRateLimitedClient allows perSecond calls with the given burst.
// perSecond <= 0 returns next unchanged.
func NewRateLimitedClient(next Client, perSecond float64, burst int) Client {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClient{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (r *RateLimitedClient) Model() string { return r.next.Model() }

// Chat implements Client.
func (r *RateLimitedClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	return r.next.Chat(ctx, messages, params)
}

// ChatJSON implements Client.
func (r *RateLimitedClient) ChatJSON(ctx context.Context, messages []Message, schema Schema, params GenerationParams) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	return r.next.ChatJSON(ctx, messages, schema, params)
}

var _ Client = (*RateLimitedClient)(nil)

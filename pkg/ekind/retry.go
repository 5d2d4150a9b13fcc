// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ekind

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig bounds the local recovery attempted for
// TransientStorageFailure, per spec.md §7's policy: "recover locally only
// for TransientStorageFailure. All other kinds surface to the caller."
type RetryConfig struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// BaseDelay is the starting backoff delay.
	BaseDelay time.Duration
	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration
}

// DefaultRetryConfig mirrors the exponential backoff used for backup
// retries in the teacher's persistence manager: 100ms, 200ms, 400ms...
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// Retry runs fn, retrying with jittered exponential backoff only when fn
// returns an error of Kind TransientStorageFailure. Any other error kind,
// or a non-ekind error, is returned immediately without retrying.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	delay := cfg.BaseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !OfKind(lastErr, TransientStorageFailure) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		jittered := delay/2 + time.Duration(rand.Int63n(int64(delay)))
		if cfg.MaxDelay > 0 && jittered > cfg.MaxDelay {
			jittered = cfg.MaxDelay
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered):
		}

		delay *= 2
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}

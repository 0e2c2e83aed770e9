// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/ergostat/pkg/pm"
)

// Replayer is a pm.Transport that answers each request with the recorded
// response of the matching exchange
type Replayer struct {
	mu        sync.Mutex
	exchanges []Exchange
	pos       int
	current   *Exchange
	strict    bool
}

var _ pm.Transport = (*Replayer)(nil)

// NewReplayer replays exchanges in order. With strict set, a request that
// differs from the recorded one fails with ErrRequestMismatch.
func NewReplayer(exchanges []Exchange, strict bool) *Replayer {
	return &Replayer{exchanges: exchanges, strict: strict}
}

// Remaining returns the number of exchanges not yet replayed
func (r *Replayer) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.exchanges) - r.pos
}

func (r *Replayer) Write(p []byte, timeout time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pos >= len(r.exchanges) {
		return 0, ErrExhausted
	}
	e := &r.exchanges[r.pos]
	r.pos++

	if r.strict && !bytes.Equal(p, e.Request) {
		return 0, fmt.Errorf("%w: exchange %d", ErrRequestMismatch, e.Seq)
	}
	if e.FailedOp == "write" {
		return 0, errors.New(e.Error)
	}
	r.current = e
	return len(p), nil
}

func (r *Replayer) Read(maxLen int, timeout time.Duration) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.current
	r.current = nil
	if e == nil {
		return nil, ErrExhausted
	}
	if len(e.Response) == 0 {
		if e.Error != "" {
			return nil, errors.New(e.Error)
		}
		return nil, nil
	}

	out := e.Response
	if len(out) > maxLen {
		out = out[:maxLen]
	}
	return append([]byte(nil), out...), nil
}

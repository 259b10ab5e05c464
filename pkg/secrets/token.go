// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package secrets keeps long-lived credentials (the registry API token)
// encrypted in memory between uses.
package secrets

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
)

var (
	// ErrEmptyToken is returned when constructing a Token from an empty value.
	ErrEmptyToken = errors.New("token is empty")

	// ErrTokenDestroyed is returned by Use after Destroy.
	ErrTokenDestroyed = errors.New("token destroyed")
)

var initOnce sync.Once

// Token holds a credential in a memguard Enclave.
//
// # Description
//
// The plaintext only exists inside a locked buffer for the duration of a
// Use callback. The source byte slice passed to NewToken is wiped.
//
// # Thread Safety
//
// Safe for concurrent use. Use and Destroy may race; a Use after Destroy
// returns ErrTokenDestroyed.
type Token struct {
	mu      sync.RWMutex
	enclave *memguard.Enclave
}

// NewToken seals value into an enclave.
//
// # Inputs
//
//   - value: Plaintext token. Must be non-empty.
//
// # Outputs
//
//   - *Token: The sealed token.
//   - error: ErrEmptyToken if value is empty.
func NewToken(value string) (*Token, error) {
	if value == "" {
		return nil, ErrEmptyToken
	}
	initOnce.Do(memguard.CatchInterrupt)

	buf := []byte(value)
	return &Token{enclave: memguard.NewEnclave(buf)}, nil
}

// Use decrypts the token and passes a heap copy of it to fn. The locked
// buffer is destroyed when fn returns; fn should not retain the string.
func (t *Token) Use(fn func(plain string) error) error {
	t.mu.RLock()
	enclave := t.enclave
	t.mu.RUnlock()

	if enclave == nil {
		return ErrTokenDestroyed
	}

	lb, err := enclave.Open()
	if err != nil {
		return fmt.Errorf("open token enclave: %w", err)
	}
	defer lb.Destroy()

	return fn(strings.Clone(lb.String()))
}

// Present reports whether the token still holds a value.
func (t *Token) Present() bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enclave != nil && t.enclave.Size() > 0
}

// Destroy drops the enclave. Safe to call more than once.
func (t *Token) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enclave = nil
}

// String never reveals the token.
func (t *Token) String() string {
	return "[REDACTED]"
}

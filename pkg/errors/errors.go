/*
Copyright 2024 The Aibrix Team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package errors defines the typed error kinds shared across the cache
// engine: arena lifecycle failures, registry/query usage errors and
// fan-out transport failures.
package errors

import "errors"

var (
	ErrorTypeArenaUnavailable   = &CacheError{error: errors.New("arena unavailable")}
	ErrorTypeArenaOutOfSpace    = &CacheError{error: errors.New("arena out of space")}
	ErrorTypeInputMismatch      = &CacheError{error: errors.New("input size mismatch")}
	ErrorTypeRequestStateMissing = &CacheError{error: errors.New("request state missing")}
	ErrorTypeRPCFailure         = &CacheError{error: errors.New("rpc failure")}
)

// Error supports error type detection and structured error info.
type Error interface {
	// ErrorType returns the category of the error.
	ErrorType() error
}

func IsError(err error, errCategory error) bool {
	switch typed := err.(type) {
	case Error:
		return typed.ErrorType() == errCategory
	default:
		return err == errCategory
	}
}

// CacheError is the base concrete error type for the cache engine.
type CacheError struct {
	error
}

func (e *CacheError) ErrorType() error {
	return e
}

func NewArenaUnavailableError(name string, cause error) *ArenaError {
	return &ArenaError{
		CacheError: &CacheError{error: errors.New("arena unavailable: " + name)},
		ArenaName:  name,
		Cause:      cause,
		kind:       ErrorTypeArenaUnavailable,
	}
}

func NewArenaOutOfSpaceError(name string, requested, available int64) *ArenaError {
	return &ArenaError{
		CacheError: &CacheError{error: errors.New("arena out of space: " + name)},
		ArenaName:  name,
		Requested:  requested,
		Available:  available,
		kind:       ErrorTypeArenaOutOfSpace,
	}
}

// ArenaError carries the arena-level failures named in the component's
// error handling contract (arena_unavailable, arena_out_of_space).
type ArenaError struct {
	*CacheError
	ArenaName string
	Requested int64
	Available int64
	Cause     error
	kind      error
}

func (e *ArenaError) ErrorType() error {
	return e.kind
}

func (e *ArenaError) Unwrap() error {
	return e.Cause
}

// InputMismatchError reports batch argument size mismatches; no state is
// mutated when this is returned.
type InputMismatchError struct {
	*CacheError
	Detail string
}

func NewInputMismatchError(detail string) *InputMismatchError {
	return &InputMismatchError{
		CacheError: &CacheError{error: errors.New("input mismatch: " + detail)},
		Detail:     detail,
	}
}

func (e *InputMismatchError) ErrorType() error {
	return ErrorTypeInputMismatch
}

// RequestStateMissingError reports a per-slot failure: speculate or
// update_spec_len called for a req_id with no prior fetch.
type RequestStateMissingError struct {
	*CacheError
	ReqID string
}

func NewRequestStateMissingError(reqID string) *RequestStateMissingError {
	return &RequestStateMissingError{
		CacheError: &CacheError{error: errors.New("request state missing: " + reqID)},
		ReqID:      reqID,
	}
}

func (e *RequestStateMissingError) ErrorType() error {
	return ErrorTypeRequestStateMissing
}

// RPCFailureError reports a single fan-out endpoint failure; it never
// aborts the remainder of the batch.
type RPCFailureError struct {
	*CacheError
	Endpoint string
	Cause    error
}

func NewRPCFailureError(endpoint string, cause error) *RPCFailureError {
	return &RPCFailureError{
		CacheError: &CacheError{error: errors.New("rpc failure: " + endpoint)},
		Endpoint:   endpoint,
		Cause:      cause,
	}
}

func (e *RPCFailureError) ErrorType() error {
	return ErrorTypeRPCFailure
}

func (e *RPCFailureError) Unwrap() error {
	return e.Cause
}

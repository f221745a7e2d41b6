// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the request and response shapes of the
// code-assistance API.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// MaxCodeBytes caps the size of code payloads accepted by any endpoint.
const MaxCodeBytes = 512 * 1024

var validate = validator.New()

// CompletionRequest asks for a streamed continuation of partial code.
//
// # Description
//
//	The prompt is the partial code at the cursor; FilePath locates it in
//	the project so context retrieval can prefer nearby files. Identical
//	(prompt, file_path) pairs are served from cache.
type CompletionRequest struct {
	Prompt    string `json:"prompt" validate:"required,max=524288"`
	FilePath  string `json:"file_path" validate:"required,max=4096"`
	MaxTokens int    `json:"max_tokens" validate:"gte=0,lte=4096"`
}

// Validate checks the request after JSON binding.
func (r *CompletionRequest) Validate() error {
	return validate.Struct(r)
}

// EnsureDefaults fills optional fields.
func (r *CompletionRequest) EnsureDefaults() {
	if r.MaxTokens == 0 {
		r.MaxTokens = 256
	}
}

// ChatRequest is a free-form question, optionally carrying the code the
// user is looking at. Chat responses are never cached.
type ChatRequest struct {
	Message     string `json:"message" validate:"required,max=524288"`
	CurrentCode string `json:"current_code" validate:"max=524288"`
}

// Validate checks the request after JSON binding.
func (r *ChatRequest) Validate() error {
	return validate.Struct(r)
}

// ReviewRequest asks for a structured issue list over a code snippet.
type ReviewRequest struct {
	Code       string `json:"code" validate:"required,max=524288"`
	Lang       string `json:"lang" validate:"max=64"`
	StrictMode bool   `json:"strict_mode"`
}

// Validate checks the request after JSON binding.
func (r *ReviewRequest) Validate() error {
	return validate.Struct(r)
}

// EnsureDefaults fills optional fields.
func (r *ReviewRequest) EnsureDefaults() {
	if r.Lang == "" {
		r.Lang = "python"
	}
}

// OptimizeRequest asks for a streamed rewrite of code, informed by related
// code pulled from each named context file.
type OptimizeRequest struct {
	Code    string   `json:"code" validate:"required,max=524288"`
	Context []string `json:"context" validate:"max=32,dive,max=4096"`
}

// Validate checks the request after JSON binding.
func (r *OptimizeRequest) Validate() error {
	return validate.Struct(r)
}

// RefactorRequest asks for a streamed rewrite targeting a specific
// language or framework version.
type RefactorRequest struct {
	Code          string   `json:"code" validate:"required,max=524288"`
	TargetVersion string   `json:"target_version" validate:"required,max=64"`
	Context       []string `json:"context" validate:"max=32,dive,max=4096"`
}

// Validate checks the request after JSON binding.
func (r *RefactorRequest) Validate() error {
	return validate.Struct(r)
}

// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildCompletionPrompt(t *testing.T) {
	t.Parallel()

	p := BuildCompletionPrompt("def process_data(", "def load_data(): ...")
	assert.Contains(t, p, "**[Airflow Coding Standards]**")
	assert.Contains(t, p, "def load_data(): ...")
	assert.True(t, strings.HasSuffix(p, "def process_data("),
		"partial code must be the final section so the model continues it")
}

func TestBuildCompletionPromptDeterministic(t *testing.T) {
	t.Parallel()

	a := BuildCompletionPrompt("x", "ctx")
	b := BuildCompletionPrompt("x", "ctx")
	assert.Equal(t, a, b)
}

func TestBuildReviewPromptIssueFormat(t *testing.T) {
	t.Parallel()

	p := BuildReviewPrompt("x = 1", "python")
	// The parser depends on the model answering in this exact format.
	for _, field := range []string{
		"- line_start:", "- line_end:", "- severity:", "- type:", "- description:",
	} {
		assert.Contains(t, p, field)
	}
	assert.Contains(t, p, "```python\nx = 1\n```")
}

func TestBuildOptimizationPrompt(t *testing.T) {
	t.Parallel()

	p := BuildOptimizationPrompt("slow()", "fast_helper()")
	assert.Contains(t, p, "**[Code to Optimize]**")
	assert.Contains(t, p, "slow()")
	assert.Contains(t, p, "**[Related Code Context]**")
	assert.Contains(t, p, "fast_helper()")
}

func TestBuildRefactorPrompt(t *testing.T) {
	t.Parallel()

	p := BuildRefactorPrompt("old()", "2.10", "")
	assert.Contains(t, p, "2.10")
	assert.Contains(t, p, "old()")
}

func TestBuildChatPrompt(t *testing.T) {
	t.Parallel()

	withCode := BuildChatPrompt("why is this slow?", "for i in range(n): db.query(i)", "helper docs")
	assert.Contains(t, withCode, "**[Current Code]**")
	assert.Contains(t, withCode, "db.query(i)")
	assert.Contains(t, withCode, "helper docs")
	assert.True(t, strings.HasSuffix(withCode, "why is this slow?"))

	withoutCode := BuildChatPrompt("hello", "", "")
	assert.NotContains(t, withoutCode, "**[Current Code]**")
}

// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nereid-ai/codeassist/services/orchestrator/datatypes"
)

func TestParseReviewResultSingleIssue(t *testing.T) {
	t.Parallel()

	issues := ParseReviewResult(`Here are the problems I found:

- line_start: 12
- line_end: 14
- severity: high
- type: performance
- description: XCom used for a 2MB payload; write to object storage instead.
`)

	require.Len(t, issues, 1)
	assert.Equal(t, datatypes.CodeIssue{
		LineStart:   12,
		LineEnd:     14,
		Severity:    "high",
		Type:        "performance",
		Description: "XCom used for a 2MB payload; write to object storage instead.",
	}, issues[0])
}

func TestParseReviewResultMultipleIssues(t *testing.T) {
	t.Parallel()

	issues := ParseReviewResult(`- line_start: 1
- line_end: 1
- severity: low
- type: standard
- description: Imports are not grouped.
- line_start: 20
- line_end: 25
- severity: medium
- type: security
- description: Connection string is hardcoded.
`)

	require.Len(t, issues, 2)
	assert.Equal(t, 1, issues[0].LineStart)
	assert.Equal(t, "standard", issues[0].Type)
	assert.Equal(t, 20, issues[1].LineStart)
	assert.Equal(t, "security", issues[1].Type)
}

func TestParseReviewResultDefaults(t *testing.T) {
	t.Parallel()

	// Bad line_start falls back to 0, bad line_end inherits line_start.
	issues := ParseReviewResult(`- line_start: around line ten
- line_end: same
- severity: LOW
- type: Standard
- description: something: with a colon in it
`)

	require.Len(t, issues, 1)
	assert.Equal(t, 0, issues[0].LineStart)
	assert.Equal(t, 0, issues[0].LineEnd)
	assert.Equal(t, "low", issues[0].Severity)
	assert.Equal(t, "standard", issues[0].Type)
	assert.Equal(t, "something: with a colon in it", issues[0].Description)
}

func TestParseReviewResultLineEndInheritsLineStart(t *testing.T) {
	t.Parallel()

	issues := ParseReviewResult(`- line_start: 7
- line_end: n/a
- severity: medium
- type: standard
- description: missing retries
`)

	require.Len(t, issues, 1)
	assert.Equal(t, 7, issues[0].LineEnd)
}

func TestParseReviewResultDropsPartialIssues(t *testing.T) {
	t.Parallel()

	// First block misses description; second is complete.
	issues := ParseReviewResult(`- line_start: 3
- line_end: 3
- severity: high
- type: security
- line_start: 9
- line_end: 9
- severity: low
- type: standard
- description: task name is not snake_case
`)

	require.Len(t, issues, 1)
	assert.Equal(t, 9, issues[0].LineStart)
}

func TestParseReviewResultGarbage(t *testing.T) {
	t.Parallel()

	assert.Empty(t, ParseReviewResult(""))
	assert.Empty(t, ParseReviewResult("The code looks fine to me!"))
	assert.NotNil(t, ParseReviewResult("no issues"))
}

func TestParseReviewResultIgnoresSurroundingProse(t *testing.T) {
	t.Parallel()

	issues := ParseReviewResult(`I reviewed the DAG carefully.

- line_start: 5
- line_end: 6
- severity: high
- type: standard
- description: default_args missing sla

Let me know if you want fixes applied.`)

	require.Len(t, issues, 1)
	assert.Equal(t, "default_args missing sla", issues[0].Description)
}

// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"strconv"
	"strings"

	"github.com/nereid-ai/codeassist/services/orchestrator/datatypes"
)

// ParseReviewResult extracts structured issues from free-form model text.
//
// # Description
//
//	The review prompt asks for issues as blocks of field-prefixed lines
//	("- line_start: 12", "- severity: high", ...). Each "- line_start:"
//	line opens a new issue and flushes the previous one. Field values
//	that fail to parse get defaults instead of failing the request: a
//	bad line_start becomes 0, a bad line_end inherits line_start.
//	Issues missing any of the five fields at flush time are dropped.
//
// # Inputs
//
//	result - Raw model output
//
// # Outputs
//
//	[]datatypes.CodeIssue - Complete issues only, in document order.
//	Never nil; an unparseable result yields an empty slice.
func ParseReviewResult(result string) []datatypes.CodeIssue {
	issues := make([]datatypes.CodeIssue, 0, 4)

	var current partialIssue
	for _, line := range strings.Split(result, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "- line_start:"):
			if current.hasLineStart {
				if issue, ok := current.complete(); ok {
					issues = append(issues, issue)
				}
				current = partialIssue{}
			}
			current.hasLineStart = true
			current.issue.LineStart = parseIntField(line, 0)

		case strings.HasPrefix(line, "- line_end:"):
			current.hasLineEnd = true
			current.issue.LineEnd = parseIntField(line, current.issue.LineStart)

		case strings.HasPrefix(line, "- severity:"):
			current.hasSeverity = true
			current.issue.Severity = strings.ToLower(fieldValue(line))

		case strings.HasPrefix(line, "- type:"):
			current.hasType = true
			current.issue.Type = strings.ToLower(fieldValue(line))

		case strings.HasPrefix(line, "- description:"):
			current.hasDescription = true
			current.issue.Description = descriptionValue(line)
		}
	}

	if issue, ok := current.complete(); ok {
		issues = append(issues, issue)
	}
	return issues
}

type partialIssue struct {
	issue          datatypes.CodeIssue
	hasLineStart   bool
	hasLineEnd     bool
	hasSeverity    bool
	hasType        bool
	hasDescription bool
}

func (p *partialIssue) complete() (datatypes.CodeIssue, bool) {
	ok := p.hasLineStart && p.hasLineEnd && p.hasSeverity && p.hasType && p.hasDescription
	return p.issue, ok
}

// fieldValue returns the text after the first colon, trimmed and with any
// surrounding angle brackets or quotes from the format template removed.
func fieldValue(line string) string {
	_, value, found := strings.Cut(line, ":")
	if !found {
		return ""
	}
	value = strings.TrimSpace(value)
	value = strings.Trim(value, `<>"'`)
	return strings.TrimSpace(value)
}

// descriptionValue splits only on the first colon so descriptions may
// themselves contain colons.
func descriptionValue(line string) string {
	_, value, _ := strings.Cut(line, ":")
	return strings.TrimSpace(value)
}

func parseIntField(line string, fallback int) int {
	n, err := strconv.Atoi(fieldValue(line))
	if err != nil {
		return fallback
	}
	return n
}

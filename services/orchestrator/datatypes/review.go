// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// Review source values. ReviewSourceExisting marks results assembled from
// cached reviews of similar code; ReviewSourceGenerated marks a fresh
// model review.
const (
	ReviewSourceExisting  = "existing_code"
	ReviewSourceGenerated = "generated"
)

// CodeIssue is one finding from a code review. All five fields must be
// present for an issue to be well formed; the parser drops partial ones.
type CodeIssue struct {
	LineStart   int    `json:"line_start"`
	LineEnd     int    `json:"line_end"`
	Severity    string `json:"severity"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// ReviewResponse is the body returned by the review endpoint.
type ReviewResponse struct {
	Issues []CodeIssue `json:"issues"`
	Source string      `json:"source"`
}

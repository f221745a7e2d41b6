// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package services provides the business logic of the code-assistance
// orchestrator: context retrieval, prompt assembly, review parsing, and
// the stream tee that populates the response cache.
package services

import "fmt"

// CodingStandards is the standards document embedded in every prompt.
// Generation quality depends on the model seeing the same document every
// time, so this is a fixed constant rather than configuration.
const CodingStandards = `
# Airflow Coding Standards

## DAG Structure
1. **Imports**: Group in this order:
   - Python standard library
   - Core Airflow
   - Other providers
   - Local modules

2. **Default Arguments**:
` + "```python" + `
default_args = {
    'owner': 'team_name',
    'retries': 3,
    'retry_delay': timedelta(minutes=5),
    'sla': timedelta(hours=1)
}
` + "```" + `

## Task Naming
- Use ` + "`snake_case`" + `
- Format: ` + "`{module}_{action}`" + `
  Example: ` + "`data_validation_check`" + `

## Error Handling
- Always set ` + "`retries`" + ` and ` + "`sla`" + `
- Use ` + "`PythonOperator`" + ` only with ` + "`@task`" + ` decorator
- Log exceptions with context

## Performance
- Avoid XCom for large data (>10KB)
- Use ` + "`template_searchpath`" + ` for common SQL
- Set ` + "`pool`" + ` for resource-intensive tasks
`

// BuildCompletionPrompt renders the prompt for code completion: standards,
// then retrieved context, then the partial code to continue.
func BuildCompletionPrompt(prompt, context string) string {
	return fmt.Sprintf(`**[Airflow Coding Standards]**
%s

**[Existing Code Context]**
%s

**[Code Completion]**
%s`, CodingStandards, context, prompt)
}

// BuildReviewPrompt renders the prompt for code review. The issue format
// at the end is load-bearing: ParseReviewResult expects the model to
// answer in exactly these field-prefixed lines.
func BuildReviewPrompt(code, lang string) string {
	return fmt.Sprintf(`**[Code Review Task]**
Analyze the following %s code for issues related to style, performance, and best practices.
Focus on Airflow standards if relevant.

**[Airflow Coding Standards]**
%s

**[Code to Review]**
`+"```%s\n%s\n```"+`

Identify issues using the following format:
- line_start: <line number>
- line_end: <line number>
- severity: <"high", "medium", "low">
- type: <"standard", "performance", "security">
- description: <detailed explanation of the issue>
`, lang, CodingStandards, lang, code)
}

// BuildOptimizationPrompt renders the prompt for code optimization,
// embedding related code pulled from the caller's context files.
func BuildOptimizationPrompt(code, relatedCode string) string {
	return fmt.Sprintf(`**[Code Optimization Task]**
Optimize the following code for better performance, readability, and adherence to Airflow standards.

**[Airflow Coding Standards]**
%s

**[Code to Optimize]**
`+"```python\n%s\n```"+`

**[Related Code Context]**
`+"```python\n%s\n```"+`

Provide optimized code with explanations of improvements.
`, CodingStandards, code, relatedCode)
}

// BuildRefactorPrompt renders the prompt for version-targeted refactoring.
func BuildRefactorPrompt(code, targetVersion, relatedCode string) string {
	return fmt.Sprintf(`**[Code Refactoring Task]**
Refactor the following code to target version %s. Preserve behavior while
modernizing APIs, removing deprecated usage, and following Airflow standards.

**[Airflow Coding Standards]**
%s

**[Code to Refactor]**
`+"```python\n%s\n```"+`

**[Related Code Context]**
`+"```python\n%s\n```"+`

Provide the refactored code with notes on each change.
`, targetVersion, CodingStandards, code, relatedCode)
}

// BuildChatPrompt renders a context-rich prompt for free-form questions.
// The user's current code, when provided, is embedded alongside retrieved
// context so answers stay grounded in the project.
func BuildChatPrompt(message, currentCode, context string) string {
	codeSection := ""
	if currentCode != "" {
		codeSection = fmt.Sprintf("\n**[Current Code]**\n```python\n%s\n```\n", currentCode)
	}
	return fmt.Sprintf(`**[Code Assistant Chat]**
You are a code assistant for Airflow DAGs and Python. Answer the question
using the project context below when relevant.

**[Project Context]**
%s
%s
**[Question]**
%s`, context, codeSection, message)
}

// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nereid-ai/codeassist/cmd/codeassist/config"
	"github.com/nereid-ai/codeassist/pkg/ux"
	"github.com/nereid-ai/codeassist/services/orchestrator/datatypes"
)

var (
	rootCmd = &cobra.Command{
		Use:   "codeassist",
		Short: "A CLI for the CodeAssist generation gateway",
		Long: `CodeAssist talks to a local gateway that caches and context-augments
requests to a local code model. Completions, reviews, and refactors
run against your own hardware; nothing leaves the machine.`,
	}
	serverURL string

	completeCmd = &cobra.Command{
		Use:   "complete [file]",
		Short: "Stream a code completion for the given source file",
		Long:  `Sends the file content as the completion prompt. The gateway retrieves related project code from the vector store and streams the completion back.`,
		Args:  cobra.ExactArgs(1),
		Run:   runComplete,
	}
	maxTokens int

	chatCmd = &cobra.Command{
		Use:   "chat [question]",
		Short: "Ask the model a question, optionally about a source file",
		Args:  cobra.MinimumNArgs(1),
		Run:   runChat,
	}
	chatCodeFile string

	reviewCmd = &cobra.Command{
		Use:   "review [file]",
		Short: "Review a source file and list the issues found",
		Args:  cobra.ExactArgs(1),
		Run:   runReview,
	}
	reviewLang   string
	reviewStrict bool
	reviewAsJSON bool

	optimizeCmd = &cobra.Command{
		Use:   "optimize [file]",
		Short: "Stream an optimized version of a source file",
		Args:  cobra.ExactArgs(1),
		Run:   runOptimize,
	}
	contextFiles []string

	refactorCmd = &cobra.Command{
		Use:   "refactor [file]",
		Short: "Stream the file refactored for a target language version",
		Args:  cobra.ExactArgs(1),
		Run:   runRefactor,
	}
	targetVersion string

	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Show gateway, model, and memory status",
		Run:   runHealth,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"Gateway base URL (overrides the configured server.url)")

	rootCmd.AddCommand(completeCmd)
	completeCmd.Flags().IntVar(&maxTokens, "max-tokens", 0,
		"Maximum tokens to generate (0 uses the configured default)")

	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatCodeFile, "code", "",
		"Source file to include as the current code")

	rootCmd.AddCommand(reviewCmd)
	reviewCmd.Flags().StringVar(&reviewLang, "lang", "",
		"Language of the code under review (defaults to the configured language)")
	reviewCmd.Flags().BoolVar(&reviewStrict, "strict", false,
		"Enable strict review mode")
	reviewCmd.Flags().BoolVar(&reviewAsJSON, "json", false,
		"Print the raw JSON response instead of a formatted list")

	rootCmd.AddCommand(optimizeCmd)
	optimizeCmd.Flags().StringArrayVar(&contextFiles, "context", nil,
		"Project file paths to retrieve as related context (repeatable)")

	rootCmd.AddCommand(refactorCmd)
	refactorCmd.Flags().StringVar(&targetVersion, "target", "",
		"Target language version, e.g. 3.12 (required)")
	refactorCmd.Flags().StringArrayVar(&contextFiles, "context", nil,
		"Project file paths to retrieve as related context (repeatable)")
	_ = refactorCmd.MarkFlagRequired("target")

	rootCmd.AddCommand(healthCmd)
}

func newClient() *gatewayClient {
	cfg := config.Global
	return newGatewayClient(cfg.Server.URL, time.Duration(cfg.Server.TimeoutSeconds)*time.Second)
}

func readSourceFile(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Could not read %s: %v", path, err)
	}
	return string(content)
}

// streamToStdout posts the payload and prints the SSE stream as it arrives.
func streamToStdout(path string, payload any) {
	body, err := newClient().postStream(path, payload)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer body.Close()

	if _, err := ux.NewStreamProcessor().Process(body); err != nil {
		log.Fatalf("Stream failed: %v", err)
	}
}

func runComplete(cmd *cobra.Command, args []string) {
	tokens := maxTokens
	if tokens == 0 {
		tokens = config.Global.Defaults.MaxTokens
	}
	streamToStdout("/v1/complete", datatypes.CompletionRequest{
		Prompt:    readSourceFile(args[0]),
		FilePath:  args[0],
		MaxTokens: tokens,
	})
}

func runChat(cmd *cobra.Command, args []string) {
	req := datatypes.ChatRequest{Message: args[0]}
	if chatCodeFile != "" {
		req.CurrentCode = readSourceFile(chatCodeFile)
	}
	streamToStdout("/v1/chat", req)
}

func runReview(cmd *cobra.Command, args []string) {
	lang := reviewLang
	if lang == "" {
		lang = config.Global.Defaults.Language
	}
	var review datatypes.ReviewResponse
	err := newClient().postJSON("/v1/review", datatypes.ReviewRequest{
		Code:       readSourceFile(args[0]),
		Lang:       lang,
		StrictMode: reviewStrict,
	}, &review)
	if err != nil {
		log.Fatalf("Review failed: %v", err)
	}

	if reviewAsJSON {
		out, _ := json.MarshalIndent(review, "", "  ")
		fmt.Println(string(out))
		return
	}
	printReview(args[0], review)
}

func printReview(path string, review datatypes.ReviewResponse) {
	if len(review.Issues) == 0 {
		fmt.Printf("%s: no issues found\n", path)
		return
	}
	fmt.Printf("%s: %d issue(s) (source: %s)\n", path, len(review.Issues), review.Source)
	for _, issue := range review.Issues {
		lines := fmt.Sprintf("L%d", issue.LineStart)
		if issue.LineEnd > issue.LineStart {
			lines = fmt.Sprintf("L%d-%d", issue.LineStart, issue.LineEnd)
		}
		fmt.Printf("  [%s] %s %s: %s\n", lines, issue.Severity, issue.Type, issue.Description)
	}
}

func runOptimize(cmd *cobra.Command, args []string) {
	streamToStdout("/v1/optimize", datatypes.OptimizeRequest{
		Code:    readSourceFile(args[0]),
		Context: contextFiles,
	})
}

func runRefactor(cmd *cobra.Command, args []string) {
	streamToStdout("/v1/refactor", datatypes.RefactorRequest{
		Code:          readSourceFile(args[0]),
		TargetVersion: targetVersion,
		Context:       contextFiles,
	})
}

func runHealth(cmd *cobra.Command, args []string) {
	var health map[string]any
	if err := newClient().getJSON("/health", &health); err != nil {
		log.Fatalf("Health check failed: %v", err)
	}
	out, _ := json.MarshalIndent(health, "", "  ")
	fmt.Println(string(out))
}

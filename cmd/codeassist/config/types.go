// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

type CodeAssistConfig struct {
	// Server: where the gateway listens
	Server ServerConfig `yaml:"server"`

	// Defaults: applied when the corresponding flag is omitted
	Defaults DefaultsConfig `yaml:"defaults"`
}

type ServerConfig struct {
	URL            string `yaml:"url"`             // e.g. http://localhost:8000
	TimeoutSeconds int    `yaml:"timeout_seconds"` // per-request HTTP timeout
}

type DefaultsConfig struct {
	Language  string `yaml:"language"`   // review language, e.g. "python"
	MaxTokens int    `yaml:"max_tokens"` // completion token cap
}

func DefaultConfig() CodeAssistConfig {
	return CodeAssistConfig{
		Server: ServerConfig{
			URL:            "http://localhost:8000",
			TimeoutSeconds: 300,
		},
		Defaults: DefaultsConfig{
			Language:  "python",
			MaxTokens: 256,
		},
	}
}

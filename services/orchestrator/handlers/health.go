// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandleHealth reports process health, host memory, and model status.
//
// GET /health
func (h *Handlers) HandleHealth(c *gin.Context) {
	modelStatus := "idle"
	gateStatus := h.gate.Status()
	if gateStatus.Busy {
		modelStatus = "busy"
	}

	body := gin.H{
		"status":       "healthy",
		"model_status": modelStatus,
	}
	if !gateStatus.LastUsed.IsZero() {
		body["model_last_used"] = gateStatus.LastUsed.UnixMilli()
	}

	if snap, err := h.memory(c.Request.Context()); err == nil {
		body["memory_used_percent"] = snap.UsedPercent
		body["memory_available_bytes"] = snap.AvailableBytes
	}

	c.JSON(http.StatusOK, body)
}

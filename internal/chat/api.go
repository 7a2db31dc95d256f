// Copyright 2024 AI SA Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chat

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/portfolio-assistant/internal/resilience"
)

// handlerGrace is added to the service deadline so the service's own
// timeout normally fires first.
const handlerGrace = 5 * time.Second

// RequestIDHeader carries the per-request id on responses
const RequestIDHeader = "X-Request-ID"

// ChatRequest is the POST /api/chat body
type ChatRequest struct {
	Message *string `json:"message"`
}

// APIHandler serves the chat endpoint
type APIHandler struct {
	service *Service
	timeout time.Duration
	logger  *zap.Logger
}

// NewAPIHandler creates a handler over service
func NewAPIHandler(service *Service, logger *zap.Logger) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		service: service,
		timeout: service.opts.Timeout + handlerGrace,
		logger:  logger,
	}
}

// RegisterRoutes registers the chat routes
func (h *APIHandler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api")
	api.POST("/chat", h.HandleChat)
}

// HandleChat answers one question
func (h *APIHandler) HandleChat(c *gin.Context) {
	requestID := uuid.New().String()
	c.Header(RequestIDHeader, requestID)
	logger := h.logger.With(zap.String("request_id", requestID))

	logger.Info("Chat request received",
		zap.String("client_ip", c.ClientIP()),
		zap.String("user_agent", c.GetHeader("User-Agent")),
	)

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == nil {
		logger.Warn("Invalid chat request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": MessageRequired})
		return
	}

	result, err := resilience.CallWithTimeout(c.Request.Context(), h.timeout, logger,
		func(ctx context.Context) (Result, error) {
			return h.service.Answer(ctx, *req.Message)
		})
	if err != nil {
		h.writeError(c, logger, err)
		return
	}

	if result.Fallback {
		c.JSON(http.StatusOK, gin.H{
			"response": result.Response,
			"note":     "fallback",
		})
		return
	}

	logger.Info("Chat request answered",
		zap.String("model", result.Model),
		zap.Int("response_length", len(result.Response)))
	c.JSON(http.StatusOK, gin.H{
		"response": result.Response,
		"model":    result.Model,
	})
}

func (h *APIHandler) writeError(c *gin.Context, logger *zap.Logger, err error) {
	var fallbackErr *FallbackError
	if errors.As(err, &fallbackErr) {
		logger.Error("Model error, served fallback", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":    fallbackErr.Error(),
			"fallback": fallbackErr.Fallback,
		})
		return
	}

	var serviceErr *resilience.ServiceError
	if resilience.AsServiceError(err, &serviceErr) {
		if serviceErr.Code != resilience.ErrorCodeBadRequest {
			logger.Error("Chat request failed", zap.Error(err))
		}
		status := serviceErr.StatusCode
		if serviceErr.Code == resilience.ErrorCodeTimeout {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": serviceErr.Message})
		return
	}

	logger.Error("Chat request failed", zap.Error(err))
	c.JSON(resilience.StatusCode(err), gin.H{"error": err.Error()})
}

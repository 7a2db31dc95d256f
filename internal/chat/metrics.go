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
	"sync"
	"time"

	"go.uber.org/zap"
)

// Request outcomes
const (
	OutcomeModel      = "model"
	OutcomeFallback   = "fallback"
	OutcomeModelError = "model_error"
	OutcomeBadRequest = "bad_request"
	OutcomeError      = "error"
)

// minAlertSamples is the number of answered requests needed before rates alert
const minAlertSamples = 10

// RequestMetrics tracks chat request outcomes and latency
type RequestMetrics struct {
	TotalRequests   int64            `json:"total_requests"`
	ByOutcome       map[string]int64 `json:"by_outcome"`
	ModelErrorRate  float64          `json:"model_error_rate"`
	AvgResponseTime float64          `json:"average_response_time_ms"`
	LastReset       time.Time        `json:"last_reset"`
}

// AlertingConfig defines thresholds for alerting
type AlertingConfig struct {
	ModelErrorThreshold   float64 `json:"model_error_threshold"`
	ResponseTimeThreshold float64 `json:"response_time_threshold_ms"`
}

// MetricsCollector collects chat service metrics. It is the only state
// shared across requests.
type MetricsCollector struct {
	mu            sync.RWMutex
	requests      *RequestMetrics
	alerting      AlertingConfig
	logger        *zap.Logger
	alertCallback func(alertType, message string, metadata map[string]interface{})
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(logger *zap.Logger, alertCallback func(string, string, map[string]interface{})) *MetricsCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetricsCollector{
		requests: newRequestMetrics(),
		alerting: AlertingConfig{
			ModelErrorThreshold:   0.50,  // Alert if more than half of model calls fail
			ResponseTimeThreshold: 20000, // Alert if response time > 20s
		},
		logger:        logger,
		alertCallback: alertCallback,
	}
}

func newRequestMetrics() *RequestMetrics {
	return &RequestMetrics{
		ByOutcome: make(map[string]int64),
		LastReset: time.Now(),
	}
}

// RecordRequest records one finished chat request
func (mc *MetricsCollector) RecordRequest(outcome string, responseTime time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	m := mc.requests
	prevTotal := m.TotalRequests
	m.TotalRequests++
	m.ByOutcome[outcome]++

	// running average
	ms := float64(responseTime.Milliseconds())
	if prevTotal == 0 {
		m.AvgResponseTime = ms
	} else {
		m.AvgResponseTime = (m.AvgResponseTime*float64(prevTotal) + ms) / float64(m.TotalRequests)
	}

	modelCalls := m.ByOutcome[OutcomeModel] + m.ByOutcome[OutcomeModelError]
	if modelCalls > 0 {
		m.ModelErrorRate = float64(m.ByOutcome[OutcomeModelError]) / float64(modelCalls)
	}

	if modelCalls >= minAlertSamples && m.ModelErrorRate > mc.alerting.ModelErrorThreshold {
		mc.triggerAlert("MODEL_ERROR_RATE_HIGH", "Model error rate exceeded threshold", map[string]interface{}{
			"model_error_rate": m.ModelErrorRate,
			"threshold":        mc.alerting.ModelErrorThreshold,
		})
	}

	if m.AvgResponseTime > mc.alerting.ResponseTimeThreshold {
		mc.triggerAlert("RESPONSE_TIME_HIGH", "Response time exceeded threshold", map[string]interface{}{
			"response_time": m.AvgResponseTime,
			"threshold":     mc.alerting.ResponseTimeThreshold,
		})
	}
}

// Snapshot returns a copy of the current request metrics
func (mc *MetricsCollector) Snapshot() RequestMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	snapshot := *mc.requests
	snapshot.ByOutcome = make(map[string]int64, len(mc.requests.ByOutcome))
	for k, v := range mc.requests.ByOutcome {
		snapshot.ByOutcome[k] = v
	}
	return snapshot
}

// GetMetrics returns current metrics snapshot
func (mc *MetricsCollector) GetMetrics() map[string]interface{} {
	snapshot := mc.Snapshot()

	mc.mu.RLock()
	alerting := mc.alerting
	mc.mu.RUnlock()

	return map[string]interface{}{
		"requests":        snapshot,
		"alerting_config": alerting,
		"collected_at":    time.Now(),
	}
}

// ResetMetrics resets all metrics counters
func (mc *MetricsCollector) ResetMetrics() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.requests = newRequestMetrics()
	mc.logger.Info("Chat service metrics reset")
}

// triggerAlert sends an alert when thresholds are exceeded
func (mc *MetricsCollector) triggerAlert(alertType, message string, metadata map[string]interface{}) {
	if mc.alertCallback != nil {
		mc.alertCallback(alertType, message, metadata)
	}

	mc.logger.Warn("Chat service alert triggered",
		zap.String("alert_type", alertType),
		zap.String("message", message),
		zap.Any("metadata", metadata),
	)
}

// HealthCheck reports whether the recorded outcomes look healthy. A high
// model error rate degrades the service; answers still flow via fallback.
func (mc *MetricsCollector) HealthCheck(_ context.Context) (bool, string, map[string]interface{}) {
	snapshot := mc.Snapshot()

	healthy := true
	metadata := map[string]interface{}{
		"total_requests":           snapshot.TotalRequests,
		"fallback_answers":         snapshot.ByOutcome[OutcomeFallback],
		"model_errors":             snapshot.ByOutcome[OutcomeModelError],
		"average_response_time_ms": snapshot.AvgResponseTime,
	}

	modelCalls := snapshot.ByOutcome[OutcomeModel] + snapshot.ByOutcome[OutcomeModelError]
	if modelCalls >= minAlertSamples && snapshot.ModelErrorRate > mc.alerting.ModelErrorThreshold {
		healthy = false
		metadata["model_error_rate"] = snapshot.ModelErrorRate
	}

	status := "healthy"
	if !healthy {
		status = "degraded"
	}

	return healthy, status, metadata
}

package opensearch

import (
	"context"
	"testing"
	"time"

	"github.com/easytransac/easytransac-bridge/infra/config"
	"github.com/stretchr/testify/assert"
)

func disabledClient() *Client {
	return &Client{config: &config.AppConfig{EnableLogging: false}}
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger(disabledClient())
	assert.NotNil(t, logger)
}

func TestLogNotification_DisabledLogging(t *testing.T) {
	logger := NewLogger(disabledClient())

	err := logger.LogNotification(context.Background(), NotificationLog{
		Timestamp: time.Now(),
		Operation: "payment",
		Channel:   "https",
		Outcome:   "applied",
		OrderInfo: &OrderInfo{OrderID: "318", AmountCents: 5000, Status: "processing"},
	})

	// Disabled logging is a silent no-op
	assert.NoError(t, err)
}

func TestLogSystemEvent_DisabledLogging(t *testing.T) {
	logger := NewLogger(disabledClient())

	err := logger.LogSystemEvent(context.Background(), map[string]string{"event": "startup"})
	assert.NoError(t, err)
}

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains string
		excludes string
	}{
		{
			name:     "redacts api key",
			input:    `{"apiKey":"very-secret","amount":"5000"}`,
			contains: "***REDACTED***",
			excludes: "very-secret",
		},
		{
			name:     "redacts signature",
			input:    `{"Signature":"deadbeef","OrderId":"318"}`,
			contains: "***REDACTED***",
			excludes: "deadbeef",
		},
		{
			name:     "leaves ordinary fields",
			input:    `{"OrderId":"318","Amount":"5000"}`,
			contains: "318",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeForLog(tt.input)
			assert.Contains(t, result, tt.contains)
			if tt.excludes != "" {
				assert.NotContains(t, result, tt.excludes)
			}
		})
	}
}

func TestIsEnabled(t *testing.T) {
	enabled := &Client{config: &config.AppConfig{EnableLogging: true}}
	assert.True(t, enabled.IsEnabled())
	assert.False(t, disabledClient().IsEnabled())
}

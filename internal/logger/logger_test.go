package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapWrapper_FieldsAndErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core)).With(map[string]interface{}{"campaignId": "c-1"})

	log.WithError(errors.New("boom")).Warn("gateway send failed", map[string]interface{}{
		"userId": "u-1",
		"cause":  errors.New("timeout"),
	})

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "c-1", fields["campaignId"])
		assert.Equal(t, "u-1", fields["userId"])
		assert.Equal(t, "boom", fields["error"])
		assert.Equal(t, "timeout", fields["cause"])
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	l := New("error", "console")
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.ErrorLevel))
}

package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out), "log output should be one JSON object")
	return out
}

func TestNewWithWriter_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)

	log.Info().Str("wallet_id", "w-1").Int64("amount", 1500).Msg("deposit applied")

	out := decodeLine(t, &buf)
	assert.Equal(t, "deposit applied", out["message"])
	assert.Equal(t, "w-1", out["wallet_id"])
	assert.Equal(t, float64(1500), out["amount"])
	assert.Equal(t, "info", out["level"])
	assert.Contains(t, out, "time")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), "level %q", tt.in)
	}
}

func TestNewWithWriter_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("warn", &buf)

	log.Info().Msg("dropped")
	assert.Empty(t, buf.String())

	log.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestNew_Pretty(t *testing.T) {
	log := New("info", true)
	assert.NotPanics(t, func() {
		log.Info().Msg("console output")
	})
}

func TestComponent_AddsField(t *testing.T) {
	var buf bytes.Buffer
	log := Component(NewWithWriter("info", &buf), "reconciler")

	log.Info().Msg("run")

	assert.Equal(t, "reconciler", decodeLine(t, &buf)["component"])
}

func TestFlagHelpers(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)

	ManualReconciliation(SecurityReview(Alert(log.Error()))).Msg("drift")

	out := decodeLine(t, &buf)
	assert.Equal(t, true, out[FieldAlert])
	assert.Equal(t, true, out[FieldSecurityReview])
	assert.Equal(t, true, out[FieldManualReconciliation])
}

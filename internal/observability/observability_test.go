package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreDefault(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestInstrument_Text(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer

	shutdown, err := instrument(context.Background(), slog.LevelWarn, FormatText, &buf, "")
	require.NoError(t, err)

	slog.Info("hidden")
	slog.Warn("refresh failed", "account_id", "acc-1")
	require.NoError(t, shutdown(context.Background()))

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "refresh failed")
	assert.Contains(t, buf.String(), "account_id=acc-1")
}

func TestInstrument_JSON(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer

	_, err := instrument(context.Background(), slog.LevelInfo, FormatJSON, &buf, "")
	require.NoError(t, err)

	slog.Info("logged in", "grant_type", "password")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "logged in", record["msg"])
	assert.Equal(t, "password", record["grant_type"])
}

func TestInstrument_OTelStdout(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer

	shutdown, err := instrument(context.Background(), slog.LevelInfo, FormatOTel, &buf, "")
	require.NoError(t, err)

	slog.Debug("below minimum")
	slog.Info("account selected")
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "account selected")
	assert.NotContains(t, buf.String(), "below minimum")
}

func TestInstrument_Errors(t *testing.T) {
	restoreDefault(t)

	_, err := instrument(context.Background(), slog.LevelInfo, "xml", &bytes.Buffer{}, "")
	assert.Error(t, err)

	_, err = instrument(context.Background(), slog.LevelInfo, FormatOTel, &bytes.Buffer{}, "carrier-pigeon")
	assert.Error(t, err)
}

func TestSeverity(t *testing.T) {
	assert.Equal(t, severity(slog.LevelDebug), severity(slog.LevelDebug-2))
	assert.Equal(t, severity(slog.LevelWarn), severity(slog.LevelWarn+1))
	assert.NotEqual(t, severity(slog.LevelInfo), severity(slog.LevelWarn))
}

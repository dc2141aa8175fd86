package logging

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLogFilePath(t *testing.T) {
	sessionStart := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name    string
		logsDir string
		appName string
		want    string
	}{
		{
			name:    "basic path",
			logsDir: "harvestlogs",
			appName: "harvester",
			want:    filepath.Join("harvestlogs", "harvester.20260212_213836.log"),
		},
		{
			name:    "relative path with dot",
			logsDir: "./harvestlogs",
			appName: "harvester",
			want:    filepath.Join(".", "harvestlogs", "harvester.20260212_213836.log"),
		},
		{
			name:    "absolute path",
			logsDir: filepath.Join("/var", "log", "harvester"),
			appName: "harvester",
			want:    filepath.Join("/var", "log", "harvester", "harvester.20260212_213836.log"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LogFilePath(tt.logsDir, tt.appName, sessionStart))
		})
	}
}

func TestZerologLevel(t *testing.T) {
	assert.Equal(t, zerolog.TraceLevel, ZerologLevel("trace"))
	assert.Equal(t, zerolog.DebugLevel, ZerologLevel("DEBUG"))
	assert.Equal(t, zerolog.InfoLevel, ZerologLevel("info"))
	assert.Equal(t, zerolog.WarnLevel, ZerologLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, ZerologLevel("Error"))
	assert.Equal(t, zerolog.InfoLevel, ZerologLevel("bogus"))
}

func TestNewZerolog(t *testing.T) {
	var console, file bytes.Buffer
	l := NewZerolog(&console, &file, "info")

	l.Debug().Msg("hidden")
	l.Info().Str("db", "sqlite").Msg("connected")

	assert.Contains(t, console.String(), "connected")
	assert.Contains(t, file.String(), "connected")
	assert.Contains(t, file.String(), "db=sqlite")
	assert.NotContains(t, file.String(), "hidden")
	// no color codes in the file copy
	assert.NotContains(t, file.String(), "\x1b[")
}

func TestNewZerolog_NoWriters(t *testing.T) {
	l := NewZerolog(nil, nil, "debug")
	assert.Equal(t, zerolog.Disabled, l.GetLevel())
}

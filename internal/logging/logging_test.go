package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{" warn ", zerolog.WarnLevel},
		{"Warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "input %q", tt.in)
	}
}

func TestInit_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: zerolog.WarnLevel, Output: &buf})
	defer Init(Config{Level: zerolog.InfoLevel})

	Info().Msg("should be filtered")
	Warn().Str("component", "test").Msg("should appear")

	out := buf.String()
	assert.NotContains(t, out, "should be filtered")
	assert.Contains(t, out, "should appear")
	assert.Contains(t, out, `"component":"test"`)
}

func TestWith_ChildLogger(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: zerolog.InfoLevel, Output: &buf})
	defer Init(Config{Level: zerolog.InfoLevel})

	child := With().Str("session", "abc").Logger()
	child.Info().Msg("tagged")

	assert.True(t, strings.Contains(buf.String(), `"session":"abc"`))
}

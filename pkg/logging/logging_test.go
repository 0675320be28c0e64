package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]zerolog.Level{
		"debug":    zerolog.DebugLevel,
		"DEBUG":    zerolog.DebugLevel,
		" warn ":   zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"off":      zerolog.Disabled,
		"":         zerolog.InfoLevel,
		"nonsense": zerolog.InfoLevel,
	} {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestForTagsSubsystem(t *testing.T) {
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	t.Cleanup(func() { SetOutput(prev) })
	SetLevel("info")

	l := For("encoder")
	l.Info().Int("pulses", 3).Msg("counted")

	assert.Contains(t, buf.String(), `"sys":"encoder"`)
	assert.Contains(t, buf.String(), `"pulses":3`)
}

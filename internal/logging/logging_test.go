package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestLevelFor(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, levelFor(0))
	assert.Equal(t, zerolog.InfoLevel, levelFor(1))
	assert.Equal(t, zerolog.DebugLevel, levelFor(2))
	assert.Equal(t, zerolog.TraceLevel, levelFor(5))
}

func TestSetup_WritesToConsole(t *testing.T) {
	var buf bytes.Buffer
	Setup(Options{Verbosity: 1, NoColor: true, Console: &buf, DisableFile: true})
	defer zerolog.SetGlobalLevel(zerolog.WarnLevel)

	logger := GetLogger("installer")
	logger.Info().Str("skill", "alpha").Msg("installed")

	out := buf.String()
	assert.Contains(t, out, "installed")
	assert.Contains(t, out, "component=installer")
	assert.Contains(t, out, "session=")
}

func TestSetup_QuietByDefault(t *testing.T) {
	var buf bytes.Buffer
	Setup(Options{Verbosity: 0, NoColor: true, Console: &buf, DisableFile: true})

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	out := buf.String()
	assert.False(t, strings.Contains(out, "hidden"))
	assert.Contains(t, out, "shown")
}

func TestLogOperationStart(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	defer zerolog.SetGlobalLevel(zerolog.WarnLevel)

	done := LogOperationStart(logger, "update")
	done()

	out := buf.String()
	assert.Contains(t, out, "operation started")
	assert.Contains(t, out, "operation completed")
	assert.Contains(t, out, "duration")
}

func TestLogFilePath(t *testing.T) {
	assert.True(t, strings.HasSuffix(LogFilePath(), "returnmytime.log"))
}

package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bavix/camfleet/internal/logging"
)

func TestBase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		app    string
		level  string
		format string
	}{
		{name: "defaults", app: "camfleet", level: "info", format: "json"},
		{name: "debug level", app: "camfleet", level: "debug", format: "json"},
		{name: "console format", app: "camfleet", level: "info", format: "console"},
		{name: "uppercase level", app: "camfleet", level: "WARN", format: "json"},
		{name: "invalid level falls back to info", app: "camfleet", level: "loud", format: "json"},
		{name: "invalid format falls back to json", app: "camfleet", level: "info", format: "xml"},
		{name: "empty everything", app: "", level: "", format: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger := logging.Base(tt.app, tt.level, tt.format)
			assert.NotNil(t, logger)

			logger.Info().Msg("test message")
		})
	}
}

func TestBaseLevelApplied(t *testing.T) {
	t.Parallel()

	logger := logging.Base("camfleet", "error", "json")
	assert.Equal(t, "error", logger.GetLevel().String())

	logger = logging.Base("camfleet", "nonsense", "json")
	assert.Equal(t, "info", logger.GetLevel().String())
}

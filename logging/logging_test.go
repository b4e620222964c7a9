package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/finance-diary/logging"
)

func TestNew_JSONWithLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logging.New(logging.Config{Level: "warn", Writer: buf})

	log.Info().Msg("hidden")
	log.Warn().Str("key", "financialData").Msg("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["message"])
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "financialData", line["key"])
	assert.Contains(t, line, "time")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, logging.ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.ErrorLevel, logging.ParseLevel(" error "))
	assert.Equal(t, zerolog.InfoLevel, logging.ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, logging.ParseLevel("loud"))
}

func TestComponent(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logging.Component(logging.NewWithWriter(buf), "reconciler")

	log.Info().Msg("pass complete")

	assert.Contains(t, buf.String(), `"component":"reconciler"`)
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := logging.WithContext(context.Background(), logging.NewWithWriter(buf))

	logger := logging.FromContext(ctx)
	logger.Info().Msg("test")
	assert.NotZero(t, buf.Len())

	assert.Equal(t, zerolog.Disabled, logging.FromContext(context.Background()).GetLevel())
}

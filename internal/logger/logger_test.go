package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "userapi", false)

	Debug().Msg("hidden")
	Info().Str("user_id", "01J0000000000000000000000A").Msg("user created")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2, "debug must be filtered at info level")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &entry))
	assert.Equal(t, "user created", entry["message"])
	assert.Equal(t, "userapi", entry["service"])
	assert.Equal(t, "info", entry["level"])
	assert.Contains(t, entry, "timestamp")
}

func TestInitWithWriter_Debug(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "userapi", true)

	Debug().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), "service:userapi")
}

func TestInit_ContextFallback(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "userapi", false)

	zerolog.Ctx(context.Background()).Info().Msg("from context")
	assert.Contains(t, buf.String(), "from context")
}

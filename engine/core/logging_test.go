package core

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogErrorKeepsPercentSigns(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	defer SetLogOutput(os.Stderr)

	LogError("%s", errors.New("descriptor pool is 100% full"))
	assert.Contains(t, buf.String(), "descriptor pool is 100% full")
	assert.NotContains(t, buf.String(), "%!")
}

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("warn")
	assert.NoError(t, err)
	assert.Equal(t, WarnLevel, level)
	_, err = ParseLogLevel("loud")
	assert.Error(t, err)
}

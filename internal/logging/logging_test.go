package logging

import (
	"bytes"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestInitLevelFallback(t *testing.T) {
	var buf bytes.Buffer
	InitWithOutput(&buf, "bogus", "text")
	assert.Equal(t, log.InfoLevel, L().GetLevel())

	InitWithOutput(&buf, "debug", "text")
	assert.Equal(t, log.DebugLevel, L().GetLevel())
}

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	InitWithOutput(&buf, "info", "json")
	defer InitWithOutput(&buf, "info", "text")

	Component("realtime").Info("hello")
	assert.Contains(t, buf.String(), `"component":"realtime"`)
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}

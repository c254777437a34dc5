package log

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToFields_PairsAndOddTrailer(t *testing.T) {
	fields := toFields("id", "t1", 42, "ignored", "count", 3, "dangling")

	assert.Equal(t, logrus.Fields{"id": "t1", "count": 3}, fields)
}

func TestError_AttachesErrAndFields(t *testing.T) {
	hook := test.NewLocal(Logger())
	defer hook.Reset()

	Error("remote write failed", errors.New("boom"), "task_id", "t1")

	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, logrus.ErrorLevel, last.Level)
	assert.Equal(t, "remote write failed", last.Message)
	assert.Equal(t, "t1", last.Data["task_id"])
	assert.EqualError(t, last.Data[logrus.ErrorKey].(error), "boom")
}

func TestSetLevel_FiltersDebug(t *testing.T) {
	hook := test.NewLocal(Logger())
	defer hook.Reset()
	defer SetLevel(LevelInfo)

	SetLevel(LevelInfo)
	Debug("hidden")
	assert.Empty(t, hook.AllEntries())

	SetLevel(LevelDebug)
	Debug("shown", "k", "v")
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "shown", hook.LastEntry().Message)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel(" ERROR "))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

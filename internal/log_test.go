package internal

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLogLevel(" debug "))
	assert.Equal(t, LogLevelTrace, ParseLogLevel("TRACE"))
	assert.Equal(t, LogLevelError, ParseLogLevel("error"))
	assert.Equal(t, LogLevelInfo, ParseLogLevel("verbose"))
}

func TestLoggerRespectsLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewLoggerWithCore(LogLevelWarn, core)

	log.Info("dropped %d", 1)
	log.Debug("dropped")
	log.Warn("kept %s", "warning")
	log.Error("kept error")

	entries := logs.AllUntimed()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "kept warning", entries[0].Message)
		assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	}
}

func TestSinkCapturesUserMessages(t *testing.T) {
	core, _ := observer.New(zapcore.DebugLevel)
	sink := NewSink()
	log := NewLoggerWithCore(LogLevelTrace, core).Named("runner").WithSink(sink)

	log.Info("Successful modification.")
	log.Debug("frontier size %d", 12)
	log.Warn("skipping unknown feature %q", "colour")

	assert.Equal(t, 2, sink.Len())
	assert.Equal(t, []string{"Successful modification.", `skipping unknown feature "colour"`}, sink.Collect())
	assert.Equal(t, []string{}, sink.Collect(), "collect drains the sink")
}

func TestSinksAreIsolatedPerRun(t *testing.T) {
	base := NewNopLogger()
	a, b := NewSink(), NewSink()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); base.WithSink(a).Info("a") }()
		go func() { defer wg.Done(); base.WithSink(b).Info("b") }()
	}
	wg.Wait()

	for _, msg := range a.Collect() {
		assert.Equal(t, "a", msg)
	}
	assert.Equal(t, 50, b.Len())
}

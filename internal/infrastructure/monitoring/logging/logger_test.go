package logging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	errs "github.com/turtacn/cfpminer/pkg/errors"
)

func newTestLogger(t *testing.T) (Logger, *zaptest.Buffer) {
	t.Helper()
	buf := &zaptest.Buffer{}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), buf, zapcore.DebugLevel)
	return &zapLogger{z: zap.New(core)}, buf
}

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "console", ""} {
		l, err := NewLogger(LogConfig{Level: LevelInfo, Format: format, OutputPaths: []string{"stderr"}})
		require.NoError(t, err, format)
		assert.NotNil(t, l)
	}
}

func TestNewLogger_EmptyOutputPaths(t *testing.T) {
	l, err := NewLogger(LogConfig{OutputPaths: []string{}})
	assert.Error(t, err)
	assert.Nil(t, l)
}

func TestNewLogger_UnknownLevel(t *testing.T) {
	_, err := NewLogger(LogConfig{Level: "verbose"})
	assert.Error(t, err)
}

func TestNewLeveledLogger_LevelIsAdjustable(t *testing.T) {
	l, level, err := NewLeveledLogger(LogConfig{Level: LevelWarn, Format: "json"})
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, zapcore.WarnLevel, level.Level())

	level.SetLevel(zapcore.DebugLevel)
	assert.True(t, level.Enabled(zapcore.DebugLevel))
}

func TestNewDefaultAndDevelopmentLogger(t *testing.T) {
	assert.NotNil(t, NewDefaultLogger())
	assert.NotNil(t, NewDevelopmentLogger())
}

func TestNopLogger_ReturnsSelf(t *testing.T) {
	l := NewNopLogger()
	l.Debug("msg")
	l.Info("msg")
	l.Warn("msg")
	l.Error("msg")
	assert.Equal(t, l, l.With(String("k", "v")))
	assert.Equal(t, l, l.WithContext(context.Background()))
	assert.Equal(t, l, l.WithError(errors.New("err")))
	assert.Equal(t, l, l.Named("x"))
	assert.NoError(t, l.Sync())
}

func TestZapLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		log   func(Logger, string)
	}{
		{"debug", func(l Logger, m string) { l.Debug(m) }},
		{"info", func(l Logger, m string) { l.Info(m) }},
		{"warn", func(l Logger, m string) { l.Warn(m) }},
		{"error", func(l Logger, m string) { l.Error(m) }},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l, buf := newTestLogger(t)
			tt.log(l, tt.level+" msg")
			assert.Contains(t, buf.String(), tt.level+" msg")
			assert.Contains(t, buf.String(), `"level":"`+tt.level+`"`)
		})
	}
}

func TestZapLogger_TypedFields(t *testing.T) {
	l, buf := newTestLogger(t)
	l.Info("mined",
		Int(FieldCompounds, 3),
		Int32("fragment", -17),
		Float64("ratio", 0.5),
		Bool("folded", true),
		Strings("types", []string{"ecfp4"}),
		Duration("took", time.Second),
	)
	out := buf.String()
	assert.Contains(t, out, `"compounds":3`)
	assert.Contains(t, out, `"fragment":-17`)
	assert.Contains(t, out, `"ratio":0.5`)
	assert.Contains(t, out, `"folded":true`)
	assert.Contains(t, out, `"types":["ecfp4"]`)
}

func TestZapLogger_WithContext_AddsIdentifiers(t *testing.T) {
	l, buf := newTestLogger(t)
	ctx := ContextWithSessionID(context.Background(), "sess-1")
	ctx = ContextWithSnapshotID(ctx, "snap-9")
	l.WithContext(ctx).Info("msg")
	assert.Contains(t, buf.String(), `"session_id":"sess-1"`)
	assert.Contains(t, buf.String(), `"snapshot_id":"snap-9"`)
}

func TestZapLogger_WithContext_Empty(t *testing.T) {
	l, _ := newTestLogger(t)
	assert.Same(t, l, l.WithContext(context.Background()))
}

func TestZapLogger_WithError_AppError(t *testing.T) {
	l, buf := newTestLogger(t)
	l.WithError(errs.Configuration("folded index")).Error("msg")
	assert.Contains(t, buf.String(), `"error_code":"CFP_001"`)
	assert.Contains(t, buf.String(), `"error":"[CFP_001] folded index"`)
}

func TestZapLogger_WithError_StandardError(t *testing.T) {
	l, buf := newTestLogger(t)
	l.WithError(errors.New("std error")).Error("msg")
	assert.Contains(t, buf.String(), `"error":"std error"`)
	assert.NotContains(t, buf.String(), "error_code")
}

func TestZapLogger_WithError_Nil(t *testing.T) {
	l, buf := newTestLogger(t)
	l.WithError(nil).Info("msg")
	assert.NotContains(t, buf.String(), `"error"`)
}

func TestZapLogger_Named(t *testing.T) {
	l, buf := newTestLogger(t)
	l.Named("miner").Info("msg")
	assert.Contains(t, buf.String(), `"logger":"miner"`)
}

func TestSetDefault(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	l, _ := newTestLogger(t)
	SetDefault(l)
	assert.Same(t, l, Default())

	SetDefault(nil)
	assert.Same(t, l, Default())
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, lvl)

	_, err = ParseLevel("invalid")
	assert.Error(t, err)
}

func TestLogStageDuration(t *testing.T) {
	l, buf := newTestLogger(t)
	LogStageDuration(l, "closed-set", time.Now(), Int(FieldFragments, 12))
	out := buf.String()
	assert.Contains(t, out, "stage completed")
	assert.Contains(t, out, `"stage":"closed-set"`)
	assert.Contains(t, out, `"fragments":12`)
	assert.Contains(t, out, "duration_ms")
}

func TestLogStageDuration_Slow(t *testing.T) {
	l, buf := newTestLogger(t)
	LogStageDuration(l, "mine", time.Now().Add(-time.Minute))
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

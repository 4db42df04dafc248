package testutil_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/cfpminer/internal/testutil"
)

func TestMockLogger(t *testing.T) {
	logger := testutil.NewMockLogger()

	logger.Info("test info", logging.String("key", "value"))

	messages := logger.GetMessages()
	assert.Len(t, messages, 1)
	assert.Equal(t, "info", messages[0].Level)
	assert.Equal(t, "test info", messages[0].Message)

	logger.Clear()
	assert.Len(t, logger.GetMessages(), 0)

	logger.Error("test error")
	assert.True(t, logger.HasMessage("error", "test error"))
	assert.False(t, logger.HasMessage("info", "test info"))
}

func TestMockLogger_ChildrenShareRecord(t *testing.T) {
	logger := testutil.NewMockLogger()
	ctx := logging.ContextWithSessionID(context.Background(), "s-1")

	logger.With(logging.Int("n", 1)).WithContext(ctx).WithError(errors.New("boom")).Warn("child")

	assert.True(t, logger.HasMessage("warn", "child"))
	v, ok := logger.FieldValue("child", "n")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = logger.FieldValue("child", logging.FieldSessionID)
	assert.True(t, ok)
	assert.Equal(t, "s-1", v)
	_, ok = logger.FieldValue("child", "error")
	assert.True(t, ok)
}

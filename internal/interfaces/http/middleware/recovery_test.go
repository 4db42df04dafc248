package middleware

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/cfpminer/internal/testutil"
	"github.com/turtacn/cfpminer/pkg/errors"
)

func TestRecovery(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		code  string
	}{
		{"invariant violation", errors.Invariant("no compounds for fragment %d", 7), "CFP_002"},
		{"foreign panic", "nil map", "COMMON_001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := testutil.NewMockLogger()
			r := gin.New()
			r.Use(RequestID(), Recovery(logger))
			r.GET("/panic", func(*gin.Context) { panic(tt.value) })

			w := get(r, "/panic")
			require.Equal(t, http.StatusInternalServerError, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["code"])
			assert.Equal(t, "internal server error", body["message"])
			assert.True(t, logger.HasMessage("error", "recovered from panic"))
		})
	}
}

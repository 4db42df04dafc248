// Package handlers implements the read-mostly HTTP API over stored index
// snapshots.
package handlers

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/cfpminer/internal/domain/fragment"
	"github.com/turtacn/cfpminer/pkg/errors"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// writeAppError maps err onto the status registered for its code.  Server
// errors are masked.
func writeAppError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)
	_ = c.Error(err)

	if status >= http.StatusInternalServerError {
		c.JSON(status, ErrorResponse{Code: code.String(), Message: errors.DefaultMessageForCode(code)})
		return
	}
	resp := ErrorResponse{Code: code.String(), Message: err.Error()}
	var ae *errors.AppError
	if stderrors.As(err, &ae) {
		resp.Message = ae.Message
		resp.Detail = ae.Detail
	}
	c.JSON(status, resp)
}

func badRequest(c *gin.Context, msg string) {
	writeAppError(c, errors.InvalidParam(msg))
}

func intParam(c *gin.Context, name string) (int, bool) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil {
		badRequest(c, name+" must be an integer")
		return 0, false
	}
	return n, true
}

func intQuery(c *gin.Context, name string) (int, bool) {
	raw, ok := c.GetQuery(name)
	if !ok {
		badRequest(c, name+" is required")
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, name+" must be an integer")
		return 0, false
	}
	return n, true
}

func fragmentParam(c *gin.Context, name string) (fragment.Fragment, bool) {
	n, err := strconv.ParseInt(c.Param(name), 10, 32)
	if err != nil {
		badRequest(c, name+" must be a 32-bit integer")
		return 0, false
	}
	return fragment.Fragment(n), true
}

func fragmentIDs(fs []fragment.Fragment) []int32 {
	out := make([]int32, len(fs))
	for i, f := range fs {
		out[i] = int32(f)
	}
	return out
}

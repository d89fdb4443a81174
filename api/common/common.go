package common

import (
	"errors"
	"net/http"

	"github.com/anoixa/image-resizer/internal/directory"
	"github.com/anoixa/image-resizer/internal/ingest"
	"github.com/anoixa/image-resizer/internal/library"
	"github.com/anoixa/image-resizer/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Response struct {
	Status string      `json:"status"`
	Msg    string      `json:"msg"`
	Data   interface{} `json:"data,omitempty"`
}

func Respond(c *gin.Context, httpStatus int, status string, message string, data interface{}) {
	c.JSON(httpStatus, Response{
		Status: status,
		Msg:    message,
		Data:   data,
	})
}

// RespondSuccess sends a success response with data.
func RespondSuccess(c *gin.Context, data interface{}) {
	Respond(c, http.StatusOK, "success", "", data)
}

// RespondSuccessMessage sends a success response with message and data.
func RespondSuccessMessage(c *gin.Context, message string, data interface{}) {
	Respond(c, http.StatusOK, "success", message, data)
}

// RespondAccepted sends a 202 response for work that continues in the background.
func RespondAccepted(c *gin.Context, message string, data interface{}) {
	Respond(c, http.StatusAccepted, "success", message, data)
}

// RespondError sends an error response with message.
func RespondError(c *gin.Context, httpStatus int, message string) {
	Respond(c, httpStatus, "error", message, nil)
}

// RespondErrorAbort sends an error response and aborts the middleware chain.
func RespondErrorAbort(c *gin.Context, httpStatus int, message string) {
	c.AbortWithStatusJSON(httpStatus, Response{
		Status: "error",
		Msg:    message,
	})
}

// RespondServiceError 将服务层错误映射为 HTTP 状态码
func RespondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, directory.ErrProtectedDirectory):
		RespondError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, directory.ErrNotFound):
		RespondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, directory.ErrInvalidDirectory),
		errors.Is(err, library.ErrEmptyBatch),
		errors.Is(err, library.ErrInvalidImage):
		RespondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ingest.ErrQueueFull), errors.Is(err, library.ErrTemporaryFailure):
		RespondError(c, http.StatusServiceUnavailable, err.Error())
	case utils.IsClientDisconnect(err):
		c.Abort()
	default:
		utils.Logger().Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("method", c.Request.Method),
			zap.Error(err))
		RespondError(c, http.StatusInternalServerError, "Internal server error")
	}
}

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"agentmux/internal/domain"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable code and a message.
type ErrorDetail struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeNotFound, domain.CodeSessionNotFound, domain.CodeUnknownAgent:
		return http.StatusNotFound
	case domain.CodeInvalidInput:
		return http.StatusBadRequest
	case domain.CodeDuplicate:
		return http.StatusConflict
	case domain.CodeTimeout:
		return http.StatusGatewayTimeout
	case domain.CodeRateLimit:
		return http.StatusTooManyRequests
	case domain.CodeAuthInvalid:
		return http.StatusUnauthorized
	case domain.CodeProviderError, domain.CodeProviderNotFound, domain.CodeClassification:
		return http.StatusBadGateway
	case domain.CodeCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError maps err onto a status and error body.
func respondError(c *gin.Context, err error) {
	code := domain.ErrorCodeOf(err)
	abortError(c, statusFor(code), code, err.Error())
}

func abortError(c *gin.Context, status int, code domain.ErrorCode, msg string) {
	c.AbortWithStatusJSON(status, ErrorBody{Error: ErrorDetail{Code: code, Message: msg}})
}

// writeError is abortError for plain net/http middleware.
func writeError(w http.ResponseWriter, status int, code domain.ErrorCode, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: ErrorDetail{Code: code, Message: msg}})
}

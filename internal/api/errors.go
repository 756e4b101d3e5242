package api

import (
	"errors"
	"net/http"

	"conference-central/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var statusByCode = map[domain.Code]int{
	domain.CodeUnauthorized:             http.StatusUnauthorized,
	domain.CodeNotFound:                 http.StatusNotFound,
	domain.CodeConflict:                 http.StatusConflict,
	domain.CodeInvalidArgument:          http.StatusBadRequest,
	domain.CodeInvalidFilterField:       http.StatusBadRequest,
	domain.CodeInvalidFilterOperator:    http.StatusBadRequest,
	domain.CodeInvalidFilterValue:       http.StatusBadRequest,
	domain.CodeMultipleInequalityFields: http.StatusBadRequest,
	domain.CodeTransactionScopeExceeded: http.StatusInternalServerError,
}

// statusFor maps an error returned by a service to the response status and
// body. Errors that are not domain errors are reported without their text.
func statusFor(err error) (int, errorResponse) {
	var de *domain.Error
	if !errors.As(err, &de) {
		return http.StatusInternalServerError, errorResponse{Error: "internal error", Code: string(domain.CodeUnknown)}
	}
	status, ok := statusByCode[de.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return status, errorResponse{Error: de.Error(), Code: string(de.Code)}
}

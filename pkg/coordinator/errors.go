package coordinator

import (
	"fmt"
	"net/http"
)

// ErrorCode identifies a fatal request failure on the wire. Fatal means the
// whole request is rejected; per-order refusals are response data instead.
type ErrorCode string

const (
	CodeSchemaInvalid                ErrorCode = "SchemaInvalid"
	CodeDecodingFailed               ErrorCode = "ZeroExTransactionDecodingFailed"
	CodeInvalidFunctionCall          ErrorCode = "InvalidFunctionCall"
	CodeInvalidTransactionSignature  ErrorCode = "InvalidTransactionSignature"
	CodeNoCoordinatorOrders          ErrorCode = "NoCoordinatorOrdersIncluded"
	CodeTransactionAlreadyUsed       ErrorCode = "TransactionAlreadyUsed"
	CodeOnlyMakerCanCancelOrders     ErrorCode = "OnlyMakerCanCancelOrders"
	CodeTransactionExpirationTooHigh ErrorCode = "TransactionExpirationTooHigh"
	CodeInternalError                ErrorCode = "InternalError"
)

// RequestError is a fatal request failure carrying the HTTP status it
// surfaces as. Field points into the request body where that helps the
// caller; Entities carries related hashes for replay rejections.
type RequestError struct {
	Code     ErrorCode
	Status   int
	Field    string
	Reason   string
	Entities []string
}

func (e *RequestError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func newRequestError(code ErrorCode, field, reason string) *RequestError {
	return &RequestError{Code: code, Status: http.StatusBadRequest, Field: field, Reason: reason}
}

func newInternalError(reason string) *RequestError {
	return &RequestError{Code: CodeInternalError, Status: http.StatusInternalServerError, Reason: reason}
}

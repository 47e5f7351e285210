// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"net/http"
)

// APIError は統一エラーフォーマットを表す。
// クライアントには常にmessageを返す。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, parking, system
	Action   string // ユーザー向け対処方法

	// Status は外部要因のエラーでHTTPステータスを明示したい場合に設定する。
	// 0の場合はCodeからマッピングする。
	Status int
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeInvalidOAuthToken  = "INVALID_OAUTH_TOKEN"
	ErrCodeUpstream           = "UPSTREAM_ERROR"
	ErrCodeSlotNotFound       = "SLOT_NOT_FOUND"
	ErrCodeVehicleNotFound    = "VEHICLE_NOT_FOUND"
	ErrCodeViolationNotFound  = "VIOLATION_NOT_FOUND"
	ErrCodeVehicleNotParked   = "VEHICLE_NOT_PARKED"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "Check the request fields and try again.",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "Invalid request body",
		Category: "validation",
		Action:   "Send a valid JSON body.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Unauthorized - please log in",
		Category: "auth",
		Action:   "Please log in.",
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワード誤りのエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password",
		Category: "auth",
		Action:   "Check your email and password.",
	}
}

// NewInvalidOAuthTokenError はIdPのアクセストークンが無効な場合のエラーを生成する。
func NewInvalidOAuthTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidOAuthToken,
		Message:  "Invalid or expired OAuth token",
		Category: "auth",
		Action:   "Sign in with the provider again.",
	}
}

// NewUpstreamError はIdP呼び出しの失敗を表すエラーを生成する。
// statusには原因に応じて400/401/500を指定する。
func NewUpstreamError(status int, message string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstream,
		Message:  message,
		Category: "auth",
		Action:   "Try again later.",
		Status:   status,
	}
}

// NewSlotNotFoundError は駐車枠未検出エラーを生成する。
func NewSlotNotFoundError(slotID string) *APIError {
	return &APIError{
		Code:     ErrCodeSlotNotFound,
		Message:  "Slot not found",
		Category: "parking",
		Action:   fmt.Sprintf("Check the slot id: %s", slotID),
	}
}

// NewVehicleNotFoundError は車両未検出エラーを生成する。
func NewVehicleNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeVehicleNotFound,
		Message:  "Vehicle not found",
		Category: "parking",
		Action:   "Check the vehicle id or plate.",
	}
}

// NewViolationNotFoundError は違反記録未検出エラーを生成する。
func NewViolationNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeViolationNotFound,
		Message:  "Violation not found",
		Category: "parking",
		Action:   "Check the violation id.",
	}
}

// NewVehicleNotParkedError は駐車中でない車両を出庫しようとした場合のエラーを生成する。
func NewVehicleNotParkedError() *APIError {
	return &APIError{
		Code:     ErrCodeVehicleNotParked,
		Message:  "Vehicle is not currently parked",
		Category: "parking",
		Action:   "Record an entry before processing the exit.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "auth",
		Action:   "Please log in again.",
	}
}

// NewInternalError はクライアントに返す汎用の内部エラーを生成する。
// 詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Internal server error",
		Category: "system",
		Action:   "Try again later.",
	}
}

// HTTPStatus はAPIErrorに対応するHTTPステータスコードを返す。
func (e *APIError) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Code {
	case ErrCodeValidation, ErrCodeInvalidRequest, ErrCodeVehicleNotParked:
		return http.StatusBadRequest
	case ErrCodeUnauthorized, ErrCodeInvalidCredentials, ErrCodeInvalidOAuthToken:
		return http.StatusUnauthorized
	case ErrCodeSlotNotFound, ErrCodeVehicleNotFound, ErrCodeViolationNotFound, ErrCodeUserNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

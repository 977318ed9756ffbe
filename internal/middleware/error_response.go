package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/fitauth/internal/model"
)

// ResponseBody はAPIレスポンスの統一フォーマット。
// エラー時は原因カテゴリと対処方法を含む。
type ResponseBody struct {
	Success   bool   `json:"success"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data"`
	ErrorCode string `json:"error_code,omitempty"`
	Category  string `json:"category,omitempty"`
	Action    string `json:"action,omitempty"`
}

// WriteSuccessResponse は統一フォーマットで成功レスポンスを書き込む。
func WriteSuccessResponse(w http.ResponseWriter, statusCode int, message string, data any) {
	writeJSON(w, statusCode, ResponseBody{
		Success: true,
		Code:    statusCode,
		Message: message,
		Data:    data,
	})
}

// WriteErrorResponse は統一フォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, ResponseBody{
		Success:   false,
		Code:      statusCode,
		Message:   apiErr.Message,
		ErrorCode: apiErr.Code,
		Category:  apiErr.Category,
		Action:    apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     model.ErrCodeInternal,
		Message:  "Internal server error",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, body ResponseBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/fitauth/internal/model"
)

// TestWriteErrorResponse_WritesUnifiedFormat は統一フォーマットでエラーレスポンスが書き込まれることを検証する。
func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "TEST_ERROR",
		Message:  "Something went wrong",
		Category: "validation",
		Action:   "正しい値を入力してください。",
	})

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var body ResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}

	if body.Success {
		t.Error("success = true, want false")
	}
	if body.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want %d", body.Code, http.StatusBadRequest)
	}
	if body.Message != "Something went wrong" {
		t.Errorf("message = %q, want %q", body.Message, "Something went wrong")
	}
	if body.ErrorCode != "TEST_ERROR" {
		t.Errorf("error_code = %q, want %q", body.ErrorCode, "TEST_ERROR")
	}
	if body.Category != "validation" {
		t.Errorf("category = %q, want %q", body.Category, "validation")
	}
	if body.Action != "正しい値を入力してください。" {
		t.Errorf("action = %q, want %q", body.Action, "正しい値を入力してください。")
	}
	if body.Data != nil {
		t.Errorf("data = %v, want nil", body.Data)
	}
}

// TestWriteSuccessResponse_WritesEnvelope は成功レスポンスがエンベロープ形式で返ることを検証する。
func TestWriteSuccessResponse_WritesEnvelope(t *testing.T) {
	w := httptest.NewRecorder()

	WriteSuccessResponse(w, http.StatusCreated, "User registered successfully", map[string]string{"id": "abc"})

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}

	var raw map[string]any
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if raw["success"] != true {
		t.Errorf("success = %v, want true", raw["success"])
	}
	if raw["code"] != float64(http.StatusCreated) {
		t.Errorf("code = %v, want 201", raw["code"])
	}
	if raw["message"] != "User registered successfully" {
		t.Errorf("message = %v", raw["message"])
	}
	data, ok := raw["data"].(map[string]any)
	if !ok || data["id"] != "abc" {
		t.Errorf("data = %v, want {id: abc}", raw["data"])
	}
	// 成功時はエラー用フィールドを含まない
	for _, field := range []string{"error_code", "category", "action"} {
		if _, ok := raw[field]; ok {
			t.Errorf("unexpected field %s in success response", field)
		}
	}
}

// TestInternalServerError_ReturnsSystemError は内部エラーが統一フォーマットで返ることを検証する。
func TestInternalServerError_ReturnsSystemError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}

	var body ResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.ErrorCode != model.ErrCodeInternal {
		t.Errorf("error_code = %q, want %q", body.ErrorCode, model.ErrCodeInternal)
	}
	if body.Category != "system" {
		t.Errorf("category = %q, want %q", body.Category, "system")
	}
	if body.Action == "" {
		t.Error("action should not be empty")
	}
}

// TestRecoveryMiddleware_ReturnsJSON500 はpanicが統一フォーマットの500に変換されることを検証する。
func TestRecoveryMiddleware_ReturnsJSON500(t *testing.T) {
	handler := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var body ResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.ErrorCode != model.ErrCodeInternal {
		t.Errorf("error_code = %q, want %q", body.ErrorCode, model.ErrCodeInternal)
	}
}

// TestSecurityHeadersMiddleware_SetsHeaders はセキュリティヘッダーが付与されることを検証する。
func TestSecurityHeadersMiddleware_SetsHeaders(t *testing.T) {
	handler := NewSecurityHeadersMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
}

// TestRecoveryMiddleware_RepanicsOnAbortHandler はErrAbortHandlerを握りつぶさないことを検証する。
func TestRecoveryMiddleware_RepanicsOnAbortHandler(t *testing.T) {
	handler := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	t.Error("ServeHTTP should have panicked")
}

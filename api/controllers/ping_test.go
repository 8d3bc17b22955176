package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/familyhub-backend/api/middleware"
)

func TestPingEchoesCallerOnlyWhenAuthenticated(t *testing.T) {
	decode := func(resp *httptest.ResponseRecorder) map[string]string {
		var body struct {
			Data map[string]string `json:"data"`
		}
		if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return body.Data
	}

	resp := httptest.NewRecorder()
	Ping("public").ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/public/ping", nil))
	public := decode(resp)
	if public["scope"] != "public" || public["user_id"] != "" {
		t.Fatalf("unexpected public body %v", public)
	}

	userID := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/ping", nil)
	ctx := middleware.WithUserID(req.Context(), userID)
	req = req.WithContext(middleware.WithRole(ctx, "admin"))
	resp = httptest.NewRecorder()
	Ping("admin").ServeHTTP(resp, req)
	admin := decode(resp)
	if admin["user_id"] != userID || admin["role"] != "admin" {
		t.Fatalf("unexpected admin body %v", admin)
	}
}

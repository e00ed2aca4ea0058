package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"hrbpms/internal/domain/auth"
	"hrbpms/internal/domain/records"
	"hrbpms/internal/domain/session"
	"hrbpms/internal/platform/supabase"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"bad login", fmt.Errorf("sign in: %w", auth.ErrInvalidCredentials), http.StatusUnauthorized, "invalid_credentials"},
		{"provider bad login", &supabase.AuthError{Status: 400, Code: "invalid_credentials", Message: "Invalid login credentials"}, http.StatusUnauthorized, "invalid_credentials"},
		{"unconfirmed email", &supabase.AuthError{Status: 400, Code: "email_not_confirmed", Message: "Email not confirmed"}, http.StatusBadRequest, "email_not_confirmed"},
		{"provider rate limit", &supabase.AuthError{Status: 429, Message: "Too many requests"}, http.StatusTooManyRequests, "auth_error"},
		{"provider down", &supabase.AuthError{Status: 503, Message: "unavailable"}, http.StatusBadGateway, "auth_unavailable"},
		{"orphan", &session.RegistrationError{OrganizationID: "org-1", Err: &supabase.AuthError{Status: 422, Code: "user_already_exists"}}, http.StatusBadGateway, "registration_incomplete"},
		{"forbidden", auth.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"not found", records.ErrNotFound, http.StatusNotFound, "not_found"},
		{"timeout", session.ErrTimeout, http.StatusGatewayTimeout, "timeout"},
		{"store", &records.StoreError{Op: "fetch", Collection: "tasks", Status: 500}, http.StatusBadGateway, "store_error"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		FromError(rec, tc.err, "req-1")
		var body struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decode: %v", tc.name, err)
		}
		if rec.Code != tc.status || body.Error.Code != tc.code {
			t.Fatalf("%s: expected %d %s, got %d %s", tc.name, tc.status, tc.code, rec.Code, rec.Body.String())
		}
	}
}

func TestFromErrorShowsProviderMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	FromError(rec, &supabase.AuthError{Status: 400, Code: "email_not_confirmed", Message: "Email not confirmed"}, "")
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error.Message != "Email not confirmed" {
		t.Fatalf("expected provider message, got %q", body.Error.Message)
	}
}

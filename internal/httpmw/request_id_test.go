package httpmw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func runRequestID(t *testing.T, header, incoming string) (ctxID, respID string) {
	t.Helper()
	h := RequestID(header)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = RequestIDFromContext(r.Context())
	}))
	name := header
	if name == "" {
		name = "X-Request-Id"
	}
	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	if incoming != "" {
		r.Header.Set(name, incoming)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return ctxID, rec.Header().Get(name)
}

func TestRequestID_GeneratesUUID(t *testing.T) {
	ctxID, respID := runRequestID(t, "", "")

	if _, err := uuid.Parse(ctxID); err != nil {
		t.Fatalf("generated id %q is not a UUID: %v", ctxID, err)
	}
	if respID != ctxID {
		t.Fatalf("response header %q != context %q", respID, ctxID)
	}
}

func TestRequestID_Propagates(t *testing.T) {
	ctxID, respID := runRequestID(t, "X-Correlation-Id", "abc-123")
	if ctxID != "abc-123" || respID != "abc-123" {
		t.Fatalf("ctx=%q resp=%q", ctxID, respID)
	}
}

func TestRequestID_RejectsMalformed(t *testing.T) {
	for _, bad := range []string{"has space", "new\nline", strings.Repeat("a", 129), "café"} {
		ctxID, _ := runRequestID(t, "", bad)
		if ctxID == bad {
			t.Errorf("malformed id %q was propagated", bad)
		}
		if _, err := uuid.Parse(ctxID); err != nil {
			t.Errorf("replacement for %q is not a UUID: %q", bad, ctxID)
		}
	}
}

func TestRequestID_UniquePerRequest(t *testing.T) {
	a, _ := runRequestID(t, "", "")
	b, _ := runRequestID(t, "", "")
	if a == b {
		t.Fatalf("ids should differ, both %q", a)
	}
}

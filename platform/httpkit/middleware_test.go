package httpkit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/renandiiias/build-automated-outreach/platform/apperr"

	"github.com/gin-gonic/gin"
)

func newTestEngine(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/scoped", ServiceAuth(secret), RequireScope("review"), func(c *gin.Context) {
		OK(c, gin.H{"subject": GetIdentity(c).Subject()})
	})
	engine.GET("/err", func(c *gin.Context) {
		HandleError(c, apperr.PolicyViolation("review_pending", "decision required"))
	})
	return engine
}

func TestServiceAuth(t *testing.T) {
	engine := newTestEngine("s3cret")

	valid, err := IssueServiceToken("s3cret", "reviewer-ui", []string{"review"}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	noScope, _ := IssueServiceToken("s3cret", "scraper", []string{"ingest"}, time.Minute)
	wrongKey, _ := IssueServiceToken("other", "reviewer-ui", []string{"review"}, time.Minute)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong key", "Bearer " + wrongKey, http.StatusUnauthorized},
		{"missing scope", "Bearer " + noScope, http.StatusForbidden},
		{"valid", "Bearer " + valid, http.StatusOK},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/scoped", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
}

func TestHandleErrorMapsPolicyViolation(t *testing.T) {
	engine := newTestEngine("s3cret")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/err", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if body := rec.Body.String(); body != `{"error":"decision required","reason":"review_pending"}` {
		t.Fatalf("unexpected body %s", body)
	}
}

package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"study-rag/internal/config"
	"study-rag/internal/metrics"
)

type fakeAnswerer struct {
	calls  int
	answer string
	err    error
}

func (f *fakeAnswerer) Answer(_ context.Context, q string) (string, error) {
	f.calls++
	return f.answer, f.err
}

func newTestServer(a Answerer) (*Server, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewServer(config.ServerConfig{Title: "Physics"}, a, metrics.New(reg), reg), reg
}

func postForm(t *testing.T, h http.Handler, question string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"question": {question}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIndexRendersForm(t *testing.T) {
	s, _ := newTestServer(&fakeAnswerer{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Physics", "Ask a question", "Get Answer", `id="spinner"`} {
		if !strings.Contains(body, want) {
			t.Errorf("page lacks %q", want)
		}
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
}

func TestBlankQuestionIsRejected(t *testing.T) {
	a := &fakeAnswerer{answer: "unused"}
	s, _ := newTestServer(a)

	for _, q := range []string{"", "   ", "\n\t"} {
		rec := postForm(t, s.Handler(), q)
		if !strings.Contains(rec.Body.String(), BlankQuestionWarning) {
			t.Errorf("question %q: warning not shown", q)
		}
	}
	if a.calls != 0 {
		t.Fatalf("answerer called %d times", a.calls)
	}
}

func TestAnswerIsRenderedAsMarkdown(t *testing.T) {
	a := &fakeAnswerer{answer: "**Inertia** keeps things moving.\n\n- no push\n- no change"}
	s, _ := newTestServer(a)

	rec := postForm(t, s.Handler(), "What is inertia?")
	body := rec.Body.String()
	if a.calls != 1 {
		t.Fatalf("answerer called %d times", a.calls)
	}
	for _, want := range []string{"Explanation:", "<strong>Inertia</strong>", "<li>no push</li>", `value="What is inertia?"`} {
		if !strings.Contains(body, want) {
			t.Errorf("page lacks %q", want)
		}
	}
}

func TestAnswerHTMLIsNotTrusted(t *testing.T) {
	s, _ := newTestServer(&fakeAnswerer{answer: "<script>alert(1)</script>"})
	body := postForm(t, s.Handler(), "q").Body.String()
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Fatal("raw html from the model was rendered")
	}
}

func TestEmptyAnswerStillShowsSuccessPanel(t *testing.T) {
	s, _ := newTestServer(&fakeAnswerer{answer: ""})
	rec := postForm(t, s.Handler(), "What is work?")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Explanation:") {
		t.Fatalf("success panel missing:\n%s", body)
	}
	if strings.Contains(body, "Error:") || strings.Contains(body, BlankQuestionWarning) {
		t.Fatal("unexpected error or warning panel")
	}
}

func TestErrorPanel(t *testing.T) {
	s, _ := newTestServer(&fakeAnswerer{err: errors.New("generation failed: invalid api key")})
	body := postForm(t, s.Handler(), "What is work?").Body.String()
	if !strings.Contains(body, "Error: generation failed: invalid api key") {
		t.Fatalf("error panel missing:\n%s", body)
	}
	if strings.Contains(body, "Explanation:") {
		t.Fatal("success panel shown on error")
	}
}

func TestAPIAnswer(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		a      *fakeAnswerer
		status int
		want   answerResponse
	}{
		{"ok", `{"question":"What is power?"}`, &fakeAnswerer{answer: "Work per time."}, http.StatusOK, answerResponse{Answer: "Work per time."}},
		{"blank", `{"question":"  "}`, &fakeAnswerer{}, http.StatusBadRequest, answerResponse{Error: BlankQuestionWarning}},
		{"bad json", `{`, &fakeAnswerer{}, http.StatusBadRequest, answerResponse{Error: "invalid request body"}},
		{"failure", `{"question":"q"}`, &fakeAnswerer{err: errors.New("boom")}, http.StatusBadGateway, answerResponse{Error: "boom"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newTestServer(tc.a)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/answer", strings.NewReader(tc.body))
			s.Handler().ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			var got answerResponse
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Fatalf("response = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(&fakeAnswerer{answer: "x"})
	h := s.Handler()
	postForm(t, h, "q")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `studyrag_http_requests_total{code="2xx",route="/"} 1`) {
		t.Fatalf("request counter missing:\n%s", rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(&fakeAnswerer{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}

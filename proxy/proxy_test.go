package proxy

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type seenRequest struct {
	method        string
	requestURI    string
	rawQuery      string
	authorization string
	contentType   string
	hasType       bool
	userAgent     string
	contentLength int64
	body          []byte
}

type ProxyTestSuite struct {
	suite.Suite
	backend *httptest.Server
	respond http.HandlerFunc
	seen    chan seenRequest
	echo    *echo.Echo
	handler *Handler
}

func (s *ProxyTestSuite) SetupTest() {
	s.seen = make(chan seenRequest, 1)
	s.respond = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}
	s.backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.seen <- seenRequest{
			method:        r.Method,
			requestURI:    r.RequestURI,
			rawQuery:      r.URL.RawQuery,
			authorization: r.Header.Get("Authorization"),
			contentType:   r.Header.Get("Content-Type"),
			hasType:       len(r.Header.Values("Content-Type")) > 0,
			userAgent:     r.Header.Get("User-Agent"),
			contentLength: r.ContentLength,
			body:          body,
		}
		s.respond(w, r)
	}))

	s.handler = s.newHandler(Config{BackendURL: s.backend.URL + "/", Namespace: DefaultNamespace, Timeout: 2 * time.Second})
}

func (s *ProxyTestSuite) newHandler(cfg Config) *Handler {
	h, err := New(cfg)
	s.Require().NoError(err)
	s.echo = echo.New()
	h.Register(s.echo)
	return h
}

func (s *ProxyTestSuite) TearDownTest() {
	s.backend.Close()
}

func (s *ProxyTestSuite) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func (s *ProxyTestSuite) lastSeen() seenRequest {
	select {
	case r := <-s.seen:
		return r
	case <-time.After(2 * time.Second):
		s.FailNow("backend was not called")
		return seenRequest{}
	}
}

func (s *ProxyTestSuite) TestTargetURLPreservesQuery() {
	testCases := []struct {
		name      string
		target    string
		wantURI   string
		wantQuery string
	}{
		{"nested path", "/api/backend/projects/p1/models", "/projects/p1/models", ""},
		{"query kept verbatim", "/api/backend/projects?org_id=a%20b&x=1&x=2&empty=", "/projects?org_id=a%20b&x=1&x=2&empty=", "org_id=a%20b&x=1&x=2&empty="},
		{"unsorted query", "/api/backend/jobs?z=1&a=2", "/jobs?z=1&a=2", "z=1&a=2"},
		{"namespace root", "/api/backend", "/", ""},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			rec := s.serve(httptest.NewRequest(http.MethodGet, tc.target, nil))

			s.Equal(http.StatusOK, rec.Code)
			seen := s.lastSeen()
			s.Equal(tc.wantURI, seen.requestURI)
			s.Equal(tc.wantQuery, seen.rawQuery)
		})
	}
}

func (s *ProxyTestSuite) TestForwardsAuthorizationAndMethod() {
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		s.Run(method, func() {
			req := httptest.NewRequest(method, "/api/backend/me", nil)
			req.Header.Set("Authorization", "Bearer abc")

			rec := s.serve(req)

			s.Equal(http.StatusOK, rec.Code)
			seen := s.lastSeen()
			s.Equal(method, seen.method)
			s.Equal("Bearer abc", seen.authorization)
		})
	}
}

func (s *ProxyTestSuite) TestUnauthenticatedCallPassesThrough() {
	s.respond = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Not authenticated"}`))
	}

	rec := s.serve(httptest.NewRequest(http.MethodGet, "/api/backend/me", nil))

	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal(`{"detail":"Not authenticated"}`, rec.Body.String())
	s.Empty(s.lastSeen().authorization)
}

func (s *ProxyTestSuite) TestMultipartBodyIsByteIdentical() {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	s.Require().NoError(mw.WriteField("name", "spend"))
	fw, err := mw.CreateFormFile("file", "spend.xlsx")
	s.Require().NoError(err)
	_, err = fw.Write([]byte{0x50, 0x4b, 0x03, 0x04, 0x00, 0xff, 0xfe, '\r', '\n', 0x00})
	s.Require().NoError(err)
	s.Require().NoError(mw.Close())
	sent := append([]byte(nil), buf.Bytes()...)

	req := httptest.NewRequest(http.MethodPost, "/api/backend/projects/p1/datasets?org_id=a", bytes.NewReader(sent))
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := s.serve(req)

	s.Equal(http.StatusOK, rec.Code)
	seen := s.lastSeen()
	s.Equal(mw.FormDataContentType(), seen.contentType)
	s.Equal(len(sent), len(seen.body))
	s.Equal(sent, seen.body)

	// The backend can re-parse the form with the forwarded boundary.
	mr := multipart.NewReader(bytes.NewReader(seen.body), mw.Boundary())
	part, err := mr.NextPart()
	s.Require().NoError(err)
	s.Equal("name", part.FormName())
}

func (s *ProxyTestSuite) TestJSONBodyForwardedVerbatim() {
	payload := `{"name":  "Q1",  "draws": 1000}`
	req := httptest.NewRequest(http.MethodPost, "/api/backend/projects/p1/jobs", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	rec := s.serve(req)

	s.Equal(http.StatusOK, rec.Code)
	seen := s.lastSeen()
	s.Equal(payload, string(seen.body))
	s.Equal("application/json", seen.contentType)
}

func (s *ProxyTestSuite) TestOnlyInboundHeadersAreForwarded() {
	req := httptest.NewRequest(http.MethodPost, "/api/backend/x", strings.NewReader(`{"a":1}`))
	req.Header.Set("Authorization", "Bearer abc")
	req.Header.Set("Cookie", "session=secret")
	req.Header.Set("X-Forwarded-For", "10.0.0.1")

	rec := s.serve(req)

	s.Equal(http.StatusOK, rec.Code)
	seen := s.lastSeen()
	s.False(seen.hasType, "backend received Content-Type %q", seen.contentType)
	s.Empty(seen.userAgent)
	s.Equal("Bearer abc", seen.authorization)
	s.Equal(`{"a":1}`, string(seen.body))
}

func (s *ProxyTestSuite) TestEmptyBodyIsNotSent() {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		s.Run(method, func() {
			req := httptest.NewRequest(method, "/api/backend/jobs/j1/cancel", http.NoBody)
			req.Header.Set("Content-Type", "application/json")

			s.serve(req)

			seen := s.lastSeen()
			s.Empty(seen.body)
			s.Equal(int64(0), seen.contentLength)
		})
	}
}

func (s *ProxyTestSuite) TestGetBodyIsDropped() {
	req := httptest.NewRequest(http.MethodGet, "/api/backend/projects", strings.NewReader(`{"ignored":true}`))
	req.Header.Set("Content-Type", "application/json")

	s.serve(req)

	s.Empty(s.lastSeen().body)
}

func (s *ProxyTestSuite) TestResponseRelayedVerbatim() {
	raw := "{\n  \"detail\" : [ {\"loc\": [\"body\"], \"msg\": \"bad\"} ]\n}"
	s.respond = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(raw))
	}

	rec := s.serve(httptest.NewRequest(http.MethodPost, "/api/backend/projects", strings.NewReader(`{}`)))

	s.Equal(http.StatusUnprocessableEntity, rec.Code)
	s.Equal(raw, rec.Body.String())
	s.Equal("application/problem+json", rec.Header().Get("Content-Type"))
	s.lastSeen()
}

func (s *ProxyTestSuite) TestMissingContentTypeDefaultsToJSON() {
	s.respond = func(w http.ResponseWriter, r *http.Request) {
		// A nil value suppresses content sniffing by net/http.
		w.Header()["Content-Type"] = nil
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"p1"}`))
	}

	rec := s.serve(httptest.NewRequest(http.MethodPost, "/api/backend/projects", strings.NewReader(`{}`)))

	s.Equal(http.StatusCreated, rec.Code)
	s.Equal(echo.MIMEApplicationJSON, rec.Header().Get("Content-Type"))
	s.Equal(`{"id":"p1"}`, rec.Body.String())
	s.lastSeen()
}

func (s *ProxyTestSuite) TestUnreachableBackendAnswers502() {
	s.backend.Close()

	rec := s.serve(httptest.NewRequest(http.MethodGet, "/api/backend/me", nil))

	s.Equal(http.StatusBadGateway, rec.Code)
	var body map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.True(strings.HasPrefix(body["detail"], "Backend unreachable: "), body["detail"])
	s.Greater(len(body["detail"]), len("Backend unreachable: "))
}

func (s *ProxyTestSuite) TestTimeoutAnswers502() {
	s.respond = func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}
	s.newHandler(Config{BackendURL: s.backend.URL, Namespace: DefaultNamespace, Timeout: 50 * time.Millisecond})

	rec := s.serve(httptest.NewRequest(http.MethodGet, "/api/backend/slow", nil))

	s.Equal(http.StatusBadGateway, rec.Code)
	s.Contains(rec.Body.String(), "Backend unreachable: ")
	s.lastSeen()
}

func (s *ProxyTestSuite) TestErrorResponseLoggedWithSnippet() {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	long := `{"detail":"` + strings.Repeat("x", 1000) + `"}`
	s.respond = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(long))
	}

	rec := s.serve(httptest.NewRequest(http.MethodGet, "/api/backend/models/m1", nil))
	s.lastSeen()

	s.Equal(http.StatusInternalServerError, rec.Code)
	s.Equal(long, rec.Body.String())

	s.Equal(1, logs.FilterMessage("proxy request").Len())
	warn := logs.FilterMessage("backend error response").All()
	s.Require().Len(warn, 1)
	snippet := warn[0].ContextMap()["body"].(string)
	s.True(strings.HasPrefix(snippet, long[:DefaultLogBodyLimit]))
	s.Less(len(snippet), len(long))
	s.Equal(int64(http.StatusInternalServerError), warn[0].ContextMap()["status"])
}

func TestProxyTestSuite(t *testing.T) {
	suite.Run(t, new(ProxyTestSuite))
}

func TestNewValidatesConfig(t *testing.T) {
	testCases := []struct {
		name string
		cfg  Config
	}{
		{"missing backend", Config{Namespace: DefaultNamespace, Timeout: time.Second}},
		{"relative backend", Config{BackendURL: "backend:8000", Namespace: DefaultNamespace, Timeout: time.Second}},
		{"namespace without slash", Config{BackendURL: DefaultBackendURL, Namespace: "api", Timeout: time.Second}},
		{"zero timeout", Config{BackendURL: DefaultBackendURL, Namespace: DefaultNamespace}},
		{"negative log limit", Config{BackendURL: DefaultBackendURL, Namespace: DefaultNamespace, Timeout: time.Second, LogBodyLimit: -1}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.cfg)
			assert.Error(t, err)
		})
	}
}

func TestTarget(t *testing.T) {
	h, err := New(Config{BackendURL: "http://backend:8000///", Namespace: "/api/backend/", Timeout: time.Second})
	require.NoError(t, err)

	assert.Equal(t, "http://backend:8000/projects", h.Target("/api/backend/projects", ""))
	assert.Equal(t, "http://backend:8000/a%2Fb?x=%zz", h.Target("/api/backend/a%2Fb", "x=%zz"))
	assert.Equal(t, "http://backend:8000", h.Target("/api/backend", ""))
}

func TestIsMultipart(t *testing.T) {
	assert.True(t, isMultipart("multipart/form-data; boundary=abc"))
	assert.True(t, isMultipart("Multipart/Form-Data; boundary=abc"))
	assert.True(t, isMultipart("multipart/form-data; boundary=\"unterminated"))
	assert.False(t, isMultipart("application/json"))
	assert.False(t, isMultipart(""))
}

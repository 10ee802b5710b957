package middleware

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
)

func TestResponseWriterWriteHeader(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newResponseWriter(w)

	if rw.statusCode != http.StatusOK {
		t.Errorf("Expected default status code 200, got %d", rw.statusCode)
	}

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusInternalServerError)

	if rw.statusCode != http.StatusNotFound {
		t.Errorf("Expected status code 404, got %d", rw.statusCode)
	}
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected recorder status 404, got %d", w.Code)
	}
}

func TestResponseWriterWrite(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newResponseWriter(w)

	data := []byte("test data")
	n, err := rw.Write(data)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n != len(data) {
		t.Errorf("Expected to write %d bytes, wrote %d", len(data), n)
	}
	if rw.bytesWritten != int64(len(data)) {
		t.Errorf("Expected bytesWritten to be %d, got %d", len(data), rw.bytesWritten)
	}
	if !rw.wroteHeader {
		t.Error("Expected wroteHeader to be true after Write")
	}
}

func TestLoggerMiddleware(t *testing.T) {
	tests := []struct {
		name          string
		path          string
		config        LoggingConfig
		expectLogging bool
	}{
		{"Logs API requests", "/api/search", DefaultLoggingConfig(), true},
		{"Skips metrics by default", "/metrics", DefaultLoggingConfig(), false},
		{"Logs health checks when enabled", "/health", LoggingConfig{LogHealthChecks: true}, true},
		{"Skips health checks when disabled", "/livez", LoggingConfig{LogHealthChecks: false}, false},
		{"Skips configured prefixes", "/api/index/status", LoggingConfig{SkipPaths: []string{"/api/index"}, LogHealthChecks: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var lines []string
			logger := NewW3CLogger(tt.config)
			logger.printf = func(format string, args ...interface{}) {
				lines = append(lines, fmt.Sprintf(format, args...))
			}

			called := false
			handler := logger.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				called = true
				w.WriteHeader(http.StatusTeapot)
				_, _ = w.Write([]byte("ok"))
			}))

			req := httptest.NewRequest(http.MethodGet, tt.path+"?q=hello", http.NoBody)
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if !called {
				t.Fatal("Expected handler to be called")
			}
			if got := len(lines) == 1; got != tt.expectLogging {
				t.Fatalf("Expected logging=%v, got lines %q", tt.expectLogging, lines)
			}
			if !tt.expectLogging {
				return
			}
			fields := strings.Fields(lines[0])
			if len(fields) != 12 {
				t.Fatalf("Expected 12 fields, got %d: %q", len(fields), lines[0])
			}
			if fields[3] != http.MethodGet || fields[4] != tt.path || fields[5] != "q=hello" {
				t.Errorf("Unexpected request fields: %q", lines[0])
			}
			if fields[6] != "418" || fields[7] != "2" {
				t.Errorf("Expected status 418 and 2 bytes, got %s and %s", fields[6], fields[7])
			}
		})
	}
}

func TestW3CLoggerHeader(t *testing.T) {
	header := NewW3CLogger(DefaultLoggingConfig()).Header()
	if len(header) != 3 || header[0] != "#Software: "+serviceName {
		t.Errorf("Unexpected header: %q", header)
	}
	if !strings.HasPrefix(header[2], "#Fields: date time c-ip") {
		t.Errorf("Unexpected fields directive: %q", header[2])
	}
}

func TestSanitizeLogField(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"plain", "plain"},
		{"line\nbreak", "line break"},
		{"cr\rlf", "cr lf"},
		{"nul\x00byte", "nulbyte"},
		{"\x1b[31mred", "[31mred"},
		{"tab\tkept", "tab\tkept"},
		{"del\x7f", "del"},
	}
	for _, tt := range tests {
		if got := sanitizeLogField(tt.input); got != tt.want {
			t.Errorf("sanitizeLogField(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "1.2.3.4:80", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.9"}, "1.2.3.4:80", "10.0.0.9"},
		{"remote addr", nil, "1.2.3.4:5678", "1.2.3.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEscapeW3CField(t *testing.T) {
	if got := escapeW3CField("curl/8.0"); got != "curl/8.0" {
		t.Errorf("Expected unquoted value, got %q", got)
	}
	if got := escapeW3CField(`Mozilla/5.0 "X"`); got != `"Mozilla/5.0 ""X"""` {
		t.Errorf("Expected quoted value, got %q", got)
	}
}

func jsonHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, body)
	})
}

func TestCompressionMiddleware(t *testing.T) {
	large := `{"results":"` + strings.Repeat("hello there ", 200) + `"}`

	tests := []struct {
		name           string
		acceptEncoding string
		body           string
		wantGzip       bool
	}{
		{"Compresses large JSON", "gzip, deflate", large, true},
		{"Skips small bodies", "gzip", `{"ok":true}`, false},
		{"Skips clients without gzip", "deflate", large, false},
		{"Honors q=0", "gzip;q=0", large, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Compression(DefaultCompressionConfig())(jsonHandler(tt.body))
			req := httptest.NewRequest(http.MethodGet, "/api/search?q=hello", http.NoBody)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusCreated {
				t.Errorf("Expected status 201, got %d", w.Code)
			}

			gotGzip := w.Header().Get("Content-Encoding") == "gzip"
			if gotGzip != tt.wantGzip {
				t.Fatalf("Expected gzip=%v, got Content-Encoding %q", tt.wantGzip, w.Header().Get("Content-Encoding"))
			}

			body := w.Body.Bytes()
			if gotGzip {
				zr, err := gzip.NewReader(bytes.NewReader(body))
				if err != nil {
					t.Fatalf("gzip.NewReader: %v", err)
				}
				if body, err = io.ReadAll(zr); err != nil {
					t.Fatalf("reading gzip body: %v", err)
				}
			}
			if string(body) != tt.body {
				t.Errorf("Body mismatch: got %d bytes, want %d", len(body), len(tt.body))
			}
		})
	}
}

func TestCompressionSkipsOtherTypes(t *testing.T) {
	handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(bytes.Repeat([]byte{0xAB}, 4096))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get("Content-Encoding") != "" {
		t.Error("Expected binary content to be sent uncompressed")
	}
	if w.Body.Len() != 4096 {
		t.Errorf("Expected 4096 bytes, got %d", w.Body.Len())
	}
}

func TestCompressionWithMultipleWrites(t *testing.T) {
	handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		for n := 0; n < 100; n++ {
			_, _ = io.WriteString(w, "General Kenobi\n")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	zr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("Expected gzip body: %v", err)
	}
	body, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("reading gzip body: %v", err)
	}
	if want := strings.Repeat("General Kenobi\n", 100); string(body) != want {
		t.Errorf("Body mismatch after multiple writes")
	}
}

func TestMetricsResponseWriterWriteHeader(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newMetricsResponseWriter(w)
	if rw.statusCode != http.StatusOK {
		t.Errorf("Expected default 200, got %d", rw.statusCode)
	}
	rw.WriteHeader(http.StatusConflict)
	if rw.statusCode != http.StatusConflict || w.Code != http.StatusConflict {
		t.Errorf("Expected 409, got %d/%d", rw.statusCode, w.Code)
	}
}

func TestMetricsMiddlewareSkipPaths(t *testing.T) {
	for _, path := range []string{"/metrics", "/health", "/api/search", "/"} {
		t.Run(path, func(t *testing.T) {
			called := false
			handler := Metrics(DefaultMetricsConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, http.NoBody))
			if !called {
				t.Error("Expected handler to be called")
			}
		})
	}
}

func TestMetricsMiddlewareStatusCode(t *testing.T) {
	for _, code := range []int{http.StatusOK, http.StatusAccepted, http.StatusBadRequest, http.StatusNotFound, http.StatusConflict} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			handler := Metrics(MetricsConfig{})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(code)
			}))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/index/start", http.NoBody))
			if w.Code != code {
				t.Errorf("Expected status code %d, got %d", code, w.Code)
			}
		})
	}
}

func TestRouteLabel(t *testing.T) {
	var label string
	router := mux.NewRouter()
	router.HandleFunc("/api/jobs/{id}", func(_ http.ResponseWriter, r *http.Request) {
		label = routeLabel(r)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/jobs/7d9c1f7e-3b7e-4a43-9d5a-2f1b0d6c8e11", http.NoBody))
	if label != "/api/jobs/{id}" {
		t.Errorf("Expected route template, got %q", label)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/media/42/subtitles", http.NoBody)
	if got := routeLabel(req); got != "/api/media/{id}/subtitles" {
		t.Errorf("Expected normalized fallback, got %q", got)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path, want string
	}{
		{"/", "/"},
		{"/health", "/health"},
		{"/api/search", "/api/search"},
		{"/api/media/42/subtitles", "/api/media/{id}/subtitles"},
		{"/api/jobs/7d9c1f7e-3b7e-4a43-9d5a-2f1b0d6c8e11/cancel", "/api/jobs/{id}/cancel"},
		{"/api/maintenance/dedupe", "/api/maintenance/dedupe"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func BenchmarkLoggingMiddleware(b *testing.B) {
	logger := NewW3CLogger(DefaultLoggingConfig())
	logger.printf = func(string, ...interface{}) {}
	handler := logger.Middleware(jsonHandler(`{"ok":true}`))
	req := httptest.NewRequest(http.MethodGet, "/api/search?q=hello", http.NoBody)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
}

func BenchmarkNormalizePath(b *testing.B) {
	for i := 0; i < b.N; i++ {
		normalizePath("/api/jobs/7d9c1f7e-3b7e-4a43-9d5a-2f1b0d6c8e11/cancel")
	}
}

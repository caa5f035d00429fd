package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/roman-kulish/rtlsdr-scanner/internal/scan"
	"github.com/roman-kulish/rtlsdr-scanner/internal/spectrum"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSource struct {
	status  scan.Status
	history []spectrum.Spectrum
}

func (f *fakeSource) Status() scan.Status { return f.status }

func (f *fakeSource) History() []spectrum.Spectrum { return f.history }

func (f *fakeSource) Session() scan.SessionConfig { return scan.NewSessionConfig() }

func testHistory() []spectrum.Spectrum {
	return []spectrum.Spectrum{
		{
			Timestamp: time.Unix(1700000000, 0).UTC(),
			Bins:      []spectrum.Bin{{Freq: 100.0, Power: -50}, {Freq: 100.1, Power: -40}},
		},
		{
			Timestamp: time.Unix(1700000001, 0).UTC(),
			Bins: []spectrum.Bin{
				{Freq: 100.0, Power: -60},
				{Freq: 100.1, Power: -20},
				{Freq: 100.2, Power: -70},
			},
		},
	}
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestServer_Status(t *testing.T) {
	source := fakeSource{status: scan.Status{Running: true, Sweep: 3, Steps: 13, Completed: 2}}
	s := New(Config{Listen: DefaultListen}, &source)

	rec := get(t, s, "/api/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Status  scan.Status    `json:"status"`
		Session map[string]any `json:"session"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !body.Status.Running || body.Status.Sweep != 3 || body.Status.Completed != 2 {
		t.Errorf("unexpected status %+v", body.Status)
	}
	if body.Session == nil {
		t.Error("expected the session configuration")
	}
}

func TestServer_Spectrum(t *testing.T) {
	testCases := []struct {
		name    string
		history []spectrum.Spectrum
		target  string
		code    int
		check   func(t *testing.T, body []byte)
	}{
		{
			name:   "no history",
			target: "/api/v1/spectrum",
			code:   http.StatusNotFound,
		},
		{
			name:    "latest",
			history: testHistory(),
			target:  "/api/v1/spectrum",
			code:    http.StatusOK,
			check: func(t *testing.T, body []byte) {
				var s spectrum.Spectrum
				if err := json.Unmarshal(body, &s); err != nil {
					t.Fatalf("decoding response: %v", err)
				}
				if len(s.Bins) != 3 || s.Timestamp.Unix() != 1700000001 {
					t.Errorf("expected the latest spectrum, got %+v", s)
				}
			},
		},
		{
			name:    "all",
			history: testHistory(),
			target:  "/api/v1/spectrum?all=true",
			code:    http.StatusOK,
			check: func(t *testing.T, body []byte) {
				var s []spectrum.Spectrum
				if err := json.Unmarshal(body, &s); err != nil {
					t.Fatalf("decoding response: %v", err)
				}
				if len(s) != 2 {
					t.Errorf("expected 2 spectra, got %d", len(s))
				}
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := New(Config{}, &fakeSource{history: tc.history})

			rec := get(t, s, tc.target)
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
			if tc.check != nil {
				tc.check(t, rec.Body.Bytes())
			}
		})
	}
}

func TestServer_Measure(t *testing.T) {
	s := New(Config{}, &fakeSource{history: testHistory()})

	testCases := []struct {
		target string
		code   int
		count  int
		peak   float64
	}{
		{"/api/v1/measure", http.StatusOK, 3, 100.1},
		{"/api/v1/measure?start=100.15", http.StatusOK, 1, 100.2},
		{"/api/v1/measure?start=100.05&stop=100.15", http.StatusOK, 1, 100.1},
		{"/api/v1/measure?start=abc", http.StatusBadRequest, 0, 0},
		{"/api/v1/measure?start=200&stop=300", http.StatusNotFound, 0, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.target, func(t *testing.T) {
			rec := get(t, s, tc.target)
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
			if tc.code != http.StatusOK {
				return
			}

			var body struct {
				Measurement spectrum.Measurement `json:"measurement"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decoding response: %v", err)
			}
			if body.Measurement.Count != tc.count {
				t.Errorf("expected %d bins, got %d", tc.count, body.Measurement.Count)
			}
			if body.Measurement.Max.Freq != tc.peak {
				t.Errorf("expected peak at %f MHz, got %f", tc.peak, body.Measurement.Max.Freq)
			}
		})
	}
}

func TestServer_Events(t *testing.T) {
	s := New(Config{}, &fakeSource{})

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.hub.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket client was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.Broadcast(scan.Event{Type: scan.EventSweepProgressed, Sweep: 2, Steps: 7})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading message: %v", err)
	}

	var e map[string]any
	if err := json.Unmarshal(msg, &e); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if e["type"] != "sweep-progressed" {
		t.Errorf("expected a sweep-progressed event, got %v", e["type"])
	}

	_ = conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for s.hub.count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket client was not unregistered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := (&Config{Enabled: true}).Validate(); err == nil {
		t.Error("expected an error for a missing listen address")
	}
	if err := (&Config{}).Validate(); err != nil {
		t.Errorf("a disabled server needs no address: %v", err)
	}
}

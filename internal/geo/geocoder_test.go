package geo

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGeocoder_Resolve(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "Shibuya" {
			t.Errorf("query q = %q, want %q", got, "Shibuya")
		}
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("query format = %q, want %q", got, "json")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"lat":"35.6595","lon":"139.7005"}]`))
	}))
	defer server.Close()

	geocoder := NewGeocoder(server.Client(), newTestLogger(), server.URL)

	point, err := geocoder.Resolve(context.Background(), "Shibuya")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if point == nil {
		t.Fatal("Resolve() = nil, want point")
	}
	if point.Latitude != 35.6595 {
		t.Errorf("Latitude = %v, want 35.6595", point.Latitude)
	}
	if point.Longitude != 139.7005 {
		t.Errorf("Longitude = %v, want 139.7005", point.Longitude)
	}
}

func TestGeocoder_Resolve_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	geocoder := NewGeocoder(server.Client(), newTestLogger(), server.URL)

	point, err := geocoder.Resolve(context.Background(), "存在しない場所XYZ")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if point != nil {
		t.Errorf("Resolve() = %+v, want nil", point)
	}
}

func TestGeocoder_Resolve_EmptyName(t *testing.T) {
	geocoder := NewGeocoder(http.DefaultClient, newTestLogger(), "http://unused.invalid")

	point, err := geocoder.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if point != nil {
		t.Errorf("Resolve() = %+v, want nil", point)
	}
}

func TestGeocoder_Resolve_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	geocoder := NewGeocoder(server.Client(), newTestLogger(), server.URL)

	if _, err := geocoder.Resolve(context.Background(), "Shibuya"); err == nil {
		t.Fatal("Resolve() error = nil, want error")
	}
}

func TestGeocoder_Resolve_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{broken`))
	}))
	defer server.Close()

	geocoder := NewGeocoder(server.Client(), newTestLogger(), server.URL)

	if _, err := geocoder.Resolve(context.Background(), "Shibuya"); err == nil {
		t.Fatal("Resolve() error = nil, want error")
	}
}

package safehttp

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	tests := []struct {
		name        string
		denyPrivate bool
		wantErr     string
	}{
		{"loopback allowed by default", false, ""},
		{"loopback denied", true, "access to private IP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(Options{DenyPrivate: tt.denyPrivate})

			resp, err := client.Get(srv.URL)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Get() error = %v", err)
				}
				resp.Body.Close()
				if resp.StatusCode != http.StatusOK {
					t.Errorf("status = %d", resp.StatusCode)
				}
				return
			}
			if err == nil {
				resp.Body.Close()
				t.Fatal("Get() error = nil, want denial")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewTransport_Pooling(t *testing.T) {
	tr := NewTransport(Options{})
	if tr.MaxIdleConnsPerHost < 2 {
		t.Errorf("MaxIdleConnsPerHost = %d, want pooling", tr.MaxIdleConnsPerHost)
	}
	if tr.DialContext == nil {
		t.Error("DialContext not set")
	}
}

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/reverie-app/reverie/internal/errors"
)

func TestReflect_SendsRedactedPayload(t *testing.T) {
	var gotAuth, gotClientHeader string
	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/reflect" {
			t.Errorf("path = %q, want /v1/reflect", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotClientHeader = r.Header.Get("X-Client")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(Response{
			Text:          "What made that moment stand out?",
			ResponseID:    "resp_123",
			PromptVersion: "2026-08-01",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk-test", "reverie", "1.4.0", nil)
	out, err := c.Reflect(context.Background(), Request{
		Text:       "today I noticed [redacted] kept coming up",
		RecordedAt: 1756000000,
	})
	if err != nil {
		t.Fatalf("Reflect failed: %v", err)
	}
	if out.Text != "What made that moment stand out?" {
		t.Errorf("Text = %q", out.Text)
	}
	if out.ResponseID != "resp_123" {
		t.Errorf("ResponseID = %q", out.ResponseID)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotClientHeader != "reverie" {
		t.Errorf("X-Client = %q", gotClientHeader)
	}
	if gotReq.Client != "reverie" || gotReq.AppVersion != "1.4.0" {
		t.Errorf("client identity = %q/%q", gotReq.Client, gotReq.AppVersion)
	}
	if gotReq.Text != "today I noticed [redacted] kept coming up" {
		t.Errorf("Text sent = %q", gotReq.Text)
	}
}

func TestContinue_CarriesPreviousResponseID(t *testing.T) {
	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/talk" {
			t.Errorf("path = %q, want /v1/talk", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(Response{Text: "go on", PromptVersion: "2026-08-01"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "reverie", "", nil)
	_, err := c.Continue(context.Background(), Request{
		Text:               "I think it's about control",
		PreviousResponseID: "resp_123",
	})
	if err != nil {
		t.Fatalf("Continue failed: %v", err)
	}
	if gotReq.PreviousResponseID != "resp_123" {
		t.Errorf("PreviousResponseID = %q", gotReq.PreviousResponseID)
	}
}

func TestGenerate_Unconfigured(t *testing.T) {
	c := NewClient("", "", "reverie", "", nil)
	_, err := c.Reflect(context.Background(), Request{Text: "x"})
	if !errors.Is(err, errors.ErrGatewayUnavailable) {
		t.Fatalf("err = %v, want GATEWAY_UNAVAILABLE", err)
	}
	if c.Available() {
		t.Error("Available() = true without base URL")
	}
}

func TestGenerate_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "reverie", "", nil)
	_, err := c.Reflect(context.Background(), Request{Text: "x"})
	if !errors.Is(err, errors.ErrGatewayHTTP) {
		t.Fatalf("err = %v, want GATEWAY_HTTP", err)
	}
	var rerr *errors.ReverieError
	if e, ok := err.(*errors.ReverieError); ok {
		rerr = e
	} else {
		t.Fatalf("err type = %T", err)
	}
	if rerr.Status != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want 429", rerr.Status)
	}
}

func TestGenerate_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "reverie", "", nil)
	_, err := c.Reflect(context.Background(), Request{Text: "x"})
	if !errors.Is(err, errors.ErrGatewayDecode) {
		t.Fatalf("err = %v, want GATEWAY_DECODE", err)
	}
}

func TestPromptVersion_Cached(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/meta" {
			t.Errorf("path = %q, want /v1/meta", r.URL.Path)
		}
		hits.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"prompt_version": "2026-08-01"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "reverie", "", nil)
	for i := 0; i < 3; i++ {
		v, err := c.PromptVersion(context.Background())
		if err != nil {
			t.Fatalf("PromptVersion failed: %v", err)
		}
		if v != "2026-08-01" {
			t.Errorf("version = %q", v)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("meta endpoint hits = %d, want 1 (cached)", hits.Load())
	}
}

func TestSeedFor_Deterministic(t *testing.T) {
	a := SeedFor("the same transcript")
	b := SeedFor("the same transcript")
	if a != b {
		t.Errorf("SeedFor not deterministic: %q vs %q", a, b)
	}
	if a == "" {
		t.Error("SeedFor returned empty prompt")
	}
}

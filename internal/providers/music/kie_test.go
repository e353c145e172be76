package music

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNormalizeKieStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want Status
	}{
		{"TEXT_SUCCESS", StatusProcessing},
		{"FIRST_SUCCESS", StatusProcessing},
		{"GENERATING", StatusProcessing},
		{"text_success", StatusProcessing},
		{"CREATE_TASK_FAILED", StatusFailed},
		{"GENERATE_AUDIO_FAILED", StatusFailed},
		{"SENSITIVE_WORD_ERROR", StatusFailed},
		{"CALLBACK_EXCEPTION", StatusFailed},
		{"SUCCESS", StatusComplete},
		{"PENDING", StatusStarting},
		{"", StatusStarting},
	}
	for _, tc := range tests {
		if got := normalizeKieStatus(tc.raw); got != tc.want {
			t.Errorf("normalizeKieStatus(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestKieGenerateAndStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/generate":
			_, _ = w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"k-77"}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/generate/record-info":
			if got := r.URL.Query().Get("taskId"); got != "k-77" {
				t.Fatalf("taskId query = %q", got)
			}
			_, _ = w.Write([]byte(`{"code":200,"data":{"taskId":"k-77","status":"SUCCESS","response":{"sunoData":[{"id":"s1","audioUrl":"https://cdn.kie/a.mp3","title":"Track A","duration":182.4},{"id":"s2","audioUrl":"https://cdn.kie/b.mp3","title":"Track B","duration":170.1}]}}}`))
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer ts.Close()

	provider := NewKie(KieOptions{APIKey: "k", BaseURL: ts.URL})
	job, err := provider.Generate(context.Background(), GenerationRequest{Prompt: "lofi beat"})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if job.ID != "k-77" || job.Status != StatusStarting {
		t.Fatalf("job = %+v", job)
	}

	update, err := provider.GetStatus(context.Background(), "k-77")
	if err != nil {
		t.Fatalf("GetStatus error: %v", err)
	}
	if update.Status != StatusComplete {
		t.Fatalf("status = %q, want complete", update.Status)
	}
	if len(update.Clips) != 2 {
		t.Fatalf("clips = %d, want 2", len(update.Clips))
	}
	if update.AudioURL != "https://cdn.kie/a.mp3" {
		t.Fatalf("audio url = %q, want first clip", update.AudioURL)
	}
}

func TestKieStatusPartialResultStaysProcessing(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":200,"data":{"taskId":"k-1","status":"TEXT_SUCCESS","response":{"sunoData":[]}}}`))
	}))
	defer ts.Close()

	provider := NewKie(KieOptions{APIKey: "k", BaseURL: ts.URL})
	update, err := provider.GetStatus(context.Background(), "k-1")
	if err != nil {
		t.Fatalf("GetStatus error: %v", err)
	}
	if update.Status != StatusProcessing {
		t.Fatalf("status = %q, want processing", update.Status)
	}
}

func TestKieGenerateEnvelopeError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":455,"msg":"maintenance window"}`))
	}))
	defer ts.Close()

	provider := NewKie(KieOptions{APIKey: "k", BaseURL: ts.URL})
	_, err := provider.Generate(context.Background(), GenerationRequest{Prompt: "x"})
	var vendorErr *VendorError
	if !errors.As(err, &vendorErr) {
		t.Fatalf("error %T, want VendorError", err)
	}
	if vendorErr.Provider != ProviderKie {
		t.Fatalf("provider = %q", vendorErr.Provider)
	}
	if !strings.Contains(vendorErr.Body, "maintenance window") {
		t.Fatalf("body = %q", vendorErr.Body)
	}
}

func TestKieGenerateMissingTaskID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":200,"msg":"success","data":{}}`))
	}))
	defer ts.Close()

	provider := NewKie(KieOptions{APIKey: "k", BaseURL: ts.URL})
	_, err := provider.Generate(context.Background(), GenerationRequest{Prompt: "x"})
	if !errors.Is(err, ErrMissingJobID) {
		t.Fatalf("error = %v, want ErrMissingJobID", err)
	}
}

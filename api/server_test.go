package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fabfab/hr-copilot/api"
	"github.com/fabfab/hr-copilot/chat"
	"github.com/fabfab/hr-copilot/chunking"
	"github.com/fabfab/hr-copilot/classify"
	"github.com/fabfab/hr-copilot/config"
	"github.com/fabfab/hr-copilot/embeddings"
	"github.com/fabfab/hr-copilot/employees"
	"github.com/fabfab/hr-copilot/index"
	"github.com/fabfab/hr-copilot/ingestion"
	"github.com/fabfab/hr-copilot/llm"
)

const employeeCSV = `EmpID,Name,Email,Phone,Department,Role,Manager,JoiningDate,CasualLeave,SickLeave,EarnedLeave
E001,Alice Smith,alice@example.com,555-0101,Engineering,Engineer,E002,2020-03-15,10,6,20
E002,Bob Jones,bob@example.com,555-0102,Engineering,Engineering Manager,,2016-01-04,7,3,25
E003,Carol Diaz,carol@example.com,555-0103,Finance,Analyst,Bob Jones,2022-01-10,8,5,12
`

type stubLLM struct {
	answer string
	err    error
}

func (s stubLLM) Generate(context.Context, string, llm.Params) (string, error) {
	return s.answer, s.err
}

func newServer(t *testing.T, client llm.Client) (*api.Server, *index.Index) {
	t.Helper()
	records, err := employees.LoadCSV(strings.NewReader(employeeCSV))
	if err != nil {
		t.Fatalf("LoadCSV returned error: %v", err)
	}
	idx := index.New(embeddings.NewHashEmbedder(128), index.Options{Threshold: 0.1})
	chunker, err := chunking.New(300, 50)
	if err != nil {
		t.Fatalf("chunking.New returned error: %v", err)
	}
	classifier := classify.NewKeywordClassifier(config.DefaultEmployeeKeywords, config.DefaultPolicyKeywords)
	svc := chat.NewService(records, idx, classifier, client, chat.Options{RetrievalK: 2})

	now := func() time.Time { return time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC) }
	server := api.New(api.Deps{
		Chat:      svc,
		Employees: records,
		Documents: ingestion.NewService(idx, chunker, nil),
		Now:       now,
	}, nil)
	return server, idx
}

func do(t *testing.T, server http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &payload)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func TestHealth(t *testing.T) {
	server, _ := newServer(t, stubLLM{answer: "ok"})

	rec := do(t, server, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = do(t, server, http.MethodPost, "/healthz", nil)
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != http.MethodGet {
		t.Fatalf("expected 405 with Allow header, got %d %q", rec.Code, rec.Header().Get("Allow"))
	}
}

func TestOpenAPI(t *testing.T) {
	server, _ := newServer(t, stubLLM{answer: "ok"})

	rec := do(t, server, http.MethodGet, "/openapi.yaml", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/v1/chat") {
		t.Fatalf("unexpected openapi response: %d", rec.Code)
	}
}

func TestDocumentsThenChat(t *testing.T) {
	server, idx := newServer(t, stubLLM{answer: "Maternity leave is 26 weeks."})

	rec := do(t, server, http.MethodPost, "/v1/documents", map[string]string{
		"source": "Leave Policy",
		"text":   "Maternity leave policy: employees receive 26 weeks of paid maternity leave.",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if idx.Len() == 0 {
		t.Fatal("expected document to be indexed")
	}

	rec = do(t, server, http.MethodPost, "/v1/chat", map[string]string{"query": "What is our maternity leave policy?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode[struct {
		Answer   string   `json:"answer"`
		Sources  []string `json:"sources"`
		Warnings []string `json:"warnings"`
		Type     string   `json:"type"`
		Trace    []string `json:"trace"`
	}](t, rec)
	if len(body.Sources) != 1 || body.Sources[0] != "Leave Policy" {
		t.Fatalf("expected Leave Policy citation, got %v", body.Sources)
	}
	if body.Type != "policy" || body.Trace[len(body.Trace)-1] != "done" {
		t.Fatalf("unexpected type or trace: %q %v", body.Type, body.Trace)
	}
	if body.Warnings == nil {
		t.Fatal("expected warnings to encode as an empty list")
	}
}

func TestChatErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		client llm.Client
		body   map[string]string
		status int
		kind   string
	}{
		{
			name:   "empty query",
			client: stubLLM{answer: "ok"},
			body:   map[string]string{"query": " "},
			status: http.StatusBadRequest,
			kind:   "empty_query",
		},
		{
			name:   "no documents",
			client: stubLLM{answer: "ok"},
			body:   map[string]string{"query": "What is the onboarding procedure?"},
			status: http.StatusConflict,
			kind:   "no_documents",
		},
		{
			name:   "unknown employee",
			client: stubLLM{answer: "ok"},
			body:   map[string]string{"query": "What is my leave balance?", "employeeId": "E404"},
			status: http.StatusNotFound,
			kind:   "employee_not_found",
		},
		{
			name:   "generation down",
			client: stubLLM{err: errors.New("connection refused")},
			body:   map[string]string{"query": "What is my leave balance?", "employeeId": "E001"},
			status: http.StatusServiceUnavailable,
			kind:   "generation_unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newServer(t, tt.client)
			rec := do(t, server, http.MethodPost, "/v1/chat", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if got := decode[errorBody](t, rec); got.Kind != tt.kind {
				t.Fatalf("expected kind %q, got %q", tt.kind, got.Kind)
			}
		})
	}
}

func TestChatRejectsUnknownFields(t *testing.T) {
	server, _ := newServer(t, stubLLM{answer: "ok"})
	rec := do(t, server, http.MethodPost, "/v1/chat", map[string]string{"question": "old field"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestEmptyDocument(t *testing.T) {
	server, idx := newServer(t, stubLLM{answer: "ok"})

	rec := do(t, server, http.MethodPost, "/v1/documents", map[string]string{"source": "Blank", "text": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := decode[errorBody](t, rec); got.Kind != "empty_document" {
		t.Fatalf("expected empty_document, got %q", got.Kind)
	}
	if idx.Len() != 0 {
		t.Fatalf("expected empty index, got %d", idx.Len())
	}
}

func TestEmployees(t *testing.T) {
	server, _ := newServer(t, stubLLM{answer: "ok"})

	rec := do(t, server, http.MethodGet, "/v1/employees?department=engineering", nil)
	list := decode[[]struct {
		ID string `json:"id"`
	}](t, rec)
	if len(list) != 2 || list[0].ID != "E001" {
		t.Fatalf("unexpected department listing: %+v", list)
	}

	rec = do(t, server, http.MethodGet, "/v1/employees", nil)
	if all := decode[[]map[string]any](t, rec); len(all) != 3 {
		t.Fatalf("expected 3 employees, got %d", len(all))
	}

	rec = do(t, server, http.MethodGet, "/v1/employees/E003", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	detail := decode[struct {
		Name   string `json:"name"`
		Tenure string `json:"tenure"`
		Leave  struct {
			Casual int `json:"casual"`
			Total  int `json:"total"`
		} `json:"leave"`
		Manager struct {
			Name  string `json:"name"`
			Found bool   `json:"found"`
		} `json:"manager"`
	}](t, rec)
	if detail.Name != "Carol Diaz" || detail.Leave.Casual != 8 || detail.Leave.Total != 25 {
		t.Fatalf("unexpected detail: %+v", detail)
	}
	if detail.Manager.Name != "Bob Jones" || !detail.Manager.Found {
		t.Fatalf("expected manager resolved by name, got %+v", detail.Manager)
	}
	if detail.Tenure != "3 years 5 months" {
		t.Fatalf("unexpected tenure %q", detail.Tenure)
	}

	rec = do(t, server, http.MethodGet, "/v1/employees/E404", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGreeting(t *testing.T) {
	server, _ := newServer(t, stubLLM{answer: "ok"})

	rec := do(t, server, http.MethodGet, "/v1/greeting?employeeId=E002", nil)
	if body := decode[struct {
		Message string `json:"message"`
	}](t, rec); !strings.HasPrefix(body.Message, "Hello Bob!") {
		t.Fatalf("unexpected greeting %q", body.Message)
	}
}

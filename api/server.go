package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fabfab/hr-copilot/chat"
	"github.com/fabfab/hr-copilot/chunking"
	"github.com/fabfab/hr-copilot/embeddings"
	"github.com/fabfab/hr-copilot/employees"
	"github.com/fabfab/hr-copilot/llm"
	"github.com/fabfab/hr-copilot/logging"
)

const maxBodyBytes = 4 << 20

type Answerer interface {
	Answer(ctx context.Context, req chat.Request) (chat.Response, error)
	Greeting(employeeID string) string
}

type Directory interface {
	Get(id string) (employees.Record, error)
	Records() []employees.Record
	Search(prefix string) []employees.Record
	ByDepartment(name string) []employees.Record
	LeaveBalance(id string) (employees.LeaveBalance, error)
	Manager(id string) (employees.ManagerInfo, error)
}

type Ingester interface {
	IngestText(ctx context.Context, source, text string) (int, error)
}

type Deps struct {
	Chat      Answerer
	Employees Directory
	Documents Ingester
	// Now is used for tenure; defaults to time.Now.
	Now func() time.Time
}

// Server exposes the HR Copilot over HTTP.
type Server struct {
	deps    Deps
	logger  logrus.FieldLogger
	handler http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type chatTurn struct {
	Query  string `json:"query"`
	Answer string `json:"answer"`
}

type chatRequest struct {
	Query      string     `json:"query"`
	EmployeeID string     `json:"employeeId"`
	History    []chatTurn `json:"history"`
}

type chatResponse struct {
	Answer   string   `json:"answer"`
	Sources  []string `json:"sources"`
	Warnings []string `json:"warnings"`
	Type     string   `json:"type"`
	Trace    []string `json:"trace"`
}

type documentRequest struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

type documentResponse struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
}

type employeeSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Role       string `json:"role"`
}

type leaveBalance struct {
	Casual int `json:"casual"`
	Sick   int `json:"sick"`
	Earned int `json:"earned"`
	Total  int `json:"total"`
}

type managerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Role  string `json:"role"`
	Found bool   `json:"found"`
}

type employeeDetail struct {
	employeeSummary
	Email       string       `json:"email"`
	Phone       string       `json:"phone"`
	JoiningDate string       `json:"joiningDate"`
	Tenure      string       `json:"tenure"`
	Leave       leaveBalance `json:"leave"`
	Manager     managerInfo  `json:"manager"`
}

func New(deps Deps, logger logrus.FieldLogger) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Server{deps: deps, logger: logging.OrDiscard(logger)}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/openapi.yaml", s.handleOpenAPI)
	mux.HandleFunc("/v1/chat", s.handleChat)
	mux.HandleFunc("/v1/documents", s.handleDocuments)
	mux.HandleFunc("/v1/employees", s.handleEmployees)
	mux.HandleFunc("/v1/employees/", s.handleEmployee)
	mux.HandleFunc("/v1/greeting", s.handleGreeting)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	if s.deps.Chat == nil {
		s.writeError(w, http.StatusServiceUnavailable, "unavailable", errors.New("chat is not configured"))
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("decode request: %w", err))
		return
	}

	turns := make([]chat.Turn, 0, len(req.History))
	for _, t := range req.History {
		turns = append(turns, chat.Turn{Query: t.Query, Answer: t.Answer})
	}

	resp, err := s.deps.Chat.Answer(r.Context(), chat.Request{
		Query:      req.Query,
		EmployeeID: req.EmployeeID,
		PriorTurns: turns,
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	trace := make([]string, len(resp.Trace))
	for i, state := range resp.Trace {
		trace[i] = string(state)
	}
	s.writeJSON(w, http.StatusOK, chatResponse{
		Answer:   resp.Answer,
		Sources:  nonNil(resp.Sources),
		Warnings: nonNil(resp.Warnings),
		Type:     string(resp.Classification.Type),
		Trace:    trace,
	})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	if s.deps.Documents == nil {
		s.writeError(w, http.StatusServiceUnavailable, "unavailable", errors.New("document ingestion is not configured"))
		return
	}

	var req documentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(req.Source) == "" {
		s.writeError(w, http.StatusBadRequest, "bad_request", errors.New("source is required"))
		return
	}

	n, err := s.deps.Documents.IngestText(r.Context(), req.Source, req.Text)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.logger.WithFields(logrus.Fields{"source": req.Source, "chunks": n}).Info("document added over http")
	s.writeJSON(w, http.StatusCreated, documentResponse{Source: strings.TrimSpace(req.Source), Chunks: n})
}

func (s *Server) handleEmployees(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.deps.Employees == nil {
		s.writeError(w, http.StatusServiceUnavailable, "unavailable", errors.New("employee records are not loaded"))
		return
	}

	var records []employees.Record
	query := r.URL.Query()
	switch {
	case query.Get("department") != "":
		records = s.deps.Employees.ByDepartment(query.Get("department"))
	case query.Get("name") != "":
		records = s.deps.Employees.Search(query.Get("name"))
	default:
		records = s.deps.Employees.Records()
	}

	out := make([]employeeSummary, 0, len(records))
	for _, record := range records {
		out = append(out, summarize(record))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEmployee(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.deps.Employees == nil {
		s.writeError(w, http.StatusServiceUnavailable, "unavailable", errors.New("employee records are not loaded"))
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/employees/"), "/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	record, err := s.deps.Employees.Get(id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	balance, err := s.deps.Employees.LeaveBalance(id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	manager, err := s.deps.Employees.Manager(id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, employeeDetail{
		employeeSummary: summarize(record),
		Email:           record.Email,
		Phone:           record.Phone,
		JoiningDate:     employees.FormatDate(record.JoiningDate),
		Tenure:          record.Tenure(s.deps.Now()),
		Leave: leaveBalance{
			Casual: balance.Casual,
			Sick:   balance.Sick,
			Earned: balance.Earned,
			Total:  balance.Total(),
		},
		Manager: managerInfo{
			Name:  manager.Name,
			Email: manager.Email,
			Phone: manager.Phone,
			Role:  manager.Role,
			Found: manager.Found,
		},
	})
}

func (s *Server) handleGreeting(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.deps.Chat == nil {
		s.writeError(w, http.StatusServiceUnavailable, "unavailable", errors.New("chat is not configured"))
		return
	}
	s.writeJSON(w, http.StatusOK, messageResponse{Message: s.deps.Chat.Greeting(r.URL.Query().Get("employeeId"))})
}

// classifyError maps domain errors to a status code and a stable kind.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrEmptyQuery):
		return http.StatusBadRequest, "empty_query"
	case errors.Is(err, chunking.ErrEmptyDocument):
		return http.StatusBadRequest, "empty_document"
	case errors.Is(err, employees.ErrInvalidSchema):
		return http.StatusBadRequest, "invalid_schema"
	case errors.Is(err, chat.ErrPromptTooLarge):
		return http.StatusRequestEntityTooLarge, "prompt_too_large"
	case errors.Is(err, chat.ErrNoDocuments):
		return http.StatusConflict, "no_documents"
	case errors.Is(err, llm.ErrUnavailable):
		return http.StatusServiceUnavailable, "generation_unavailable"
	case errors.Is(err, embeddings.ErrUnavailable):
		return http.StatusServiceUnavailable, "embedding_unavailable"
	case errors.Is(err, employees.ErrEmployeeNotFound):
		return http.StatusNotFound, "employee_not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status, kind := classifyError(err)
	s.writeError(w, status, kind, err)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", fmt.Errorf("method not allowed, use %s", allowed))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Warn("encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, kind string, err error) {
	entry := s.logger.WithFields(logrus.Fields{"status": status, "kind": kind}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("api error")
	} else {
		entry.Info("api error")
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}

func summarize(record employees.Record) employeeSummary {
	return employeeSummary{
		ID:         record.ID,
		Name:       record.Name,
		Department: record.Department,
		Role:       record.Role,
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

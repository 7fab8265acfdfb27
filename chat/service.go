package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/fabfab/hr-copilot/classify"
	"github.com/fabfab/hr-copilot/config"
	"github.com/fabfab/hr-copilot/embeddings"
	"github.com/fabfab/hr-copilot/employees"
	"github.com/fabfab/hr-copilot/index"
	"github.com/fabfab/hr-copilot/llm"
	"github.com/fabfab/hr-copilot/logging"
)

const (
	defaultRetrievalK    = 4
	defaultMaxPromptSize = 16000
	defaultTimeout       = 30 * time.Second
)

type Options struct {
	RetrievalK    int
	MaxPromptSize int
	// HistoryTurns is how many prior turns go into the prompt; zero means none.
	HistoryTurns  int
	Params        llm.Params
	Timeout       time.Duration
	Logger        logrus.FieldLogger
	// Now is used for tenure calculations.
	Now func() time.Time
}

func OptionsFromConfig(cfg config.Config, logger logrus.FieldLogger) Options {
	return Options{
		RetrievalK:    cfg.RAG.RetrievalK,
		MaxPromptSize: cfg.RAG.MaxPromptSize,
		HistoryTurns:  cfg.RAG.HistoryTurns,
		Params:        llm.ParamsFromConfig(cfg),
		Timeout:       cfg.LLM.Timeout,
		Logger:        logger,
	}
}

type Service struct {
	records    RecordSource
	policies   PolicyIndex
	classifier classify.Classifier
	llm        llm.Client
	opts       Options
	logger     logrus.FieldLogger
}

func NewService(records RecordSource, policies PolicyIndex, classifier classify.Classifier, client llm.Client, opts Options) *Service {
	if opts.RetrievalK <= 0 {
		opts.RetrievalK = defaultRetrievalK
	}
	if opts.MaxPromptSize <= 0 {
		opts.MaxPromptSize = defaultMaxPromptSize
	}
	if opts.HistoryTurns < 0 {
		opts.HistoryTurns = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		records:    records,
		policies:   policies,
		classifier: classifier,
		llm:        client,
		opts:       opts,
		logger:     logging.OrDiscard(opts.Logger),
	}
}

// turn tracks one Answer call through the response states.
type turn struct {
	log      logrus.FieldLogger
	started  time.Time
	trace    []State
	warnings []string
}

func (t *turn) enter(state State) {
	from := t.trace[len(t.trace)-1]
	t.trace = append(t.trace, state)
	t.log.WithFields(logrus.Fields{"from": from, "to": state}).Debug("state transition")
}

func (t *turn) warn(format string, args ...any) {
	t.warnings = append(t.warnings, fmt.Sprintf(format, args...))
}

func (t *turn) fail(resp Response, err error) (Response, error) {
	t.enter(StateErrored)
	resp.Warnings = t.warnings
	resp.Trace = t.trace
	t.log.WithError(err).WithField("duration", time.Since(t.started)).Warn("answer failed")
	return resp, err
}

// Answer runs one query through classification, retrieval, generation and
// citation formatting. Retrieval problems become warnings as long as some
// context was found or none was needed; generation problems are always
// returned and wrap llm.ErrUnavailable.
func (s *Service) Answer(ctx context.Context, req Request) (Response, error) {
	requestID := uuid.NewString()
	t := &turn{
		log:     s.logger.WithField("request_id", requestID),
		started: time.Now(),
		trace:   []State{StateIdle},
	}
	var resp Response

	t.enter(StateClassifying)
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return t.fail(resp, ErrEmptyQuery)
	}
	if s.classifier == nil || s.llm == nil {
		return t.fail(resp, errors.New("chat service is not fully configured"))
	}

	employeeID := strings.TrimSpace(req.EmployeeID)
	if employeeID != "" && !employees.ValidID(employeeID) {
		t.warn("%q is not a valid employee ID; answering without personal records.", employeeID)
		employeeID = ""
	}

	class := s.classifier.Classify(query, employeeID != "")
	resp.Classification = class
	t.log.WithFields(logrus.Fields{
		"type":     class.Type,
		"employee": class.NeedsEmployeeData,
		"policy":   class.NeedsPolicyData,
	}).Debug("query classified")
	if class.EmployeeIntent() && employeeID == "" {
		t.warn("This looks like a question about your own records; select an employee ID for a personalised answer.")
	}

	t.enter(StateRetrieving)
	var (
		employeeText string
		employeeErr  error
		passages     []index.Result
		policyErr    error
	)
	g, gctx := errgroup.WithContext(ctx)
	if class.NeedsEmployeeData {
		g.Go(func() error {
			employeeText, employeeErr = s.employeeContext(employeeID, query)
			return nil
		})
	}
	if class.NeedsPolicyData {
		g.Go(func() error {
			passages, policyErr = s.policyContext(gctx, query)
			return nil
		})
	}
	_ = g.Wait()

	s.noteRetrieval(t, employeeID, employeeErr, policyErr, class.NeedsPolicyData && policyErr == nil && len(passages) == 0)

	needed := class.NeedsEmployeeData || class.NeedsPolicyData
	gathered := employeeText != "" || len(passages) > 0
	if failures := errors.Join(employeeErr, policyErr); needed && !gathered && failures != nil {
		return t.fail(resp, fmt.Errorf("retrieve context: %w", failures))
	}

	t.enter(StateGenerating)
	parts := promptParts{
		query:    query,
		history:  lastTurns(req.PriorTurns, s.opts.HistoryTurns),
		employee: employeeText,
		policy:   passages,
	}
	prompt, fitted, err := fitPrompt(parts, s.opts.MaxPromptSize)
	if err != nil {
		return t.fail(resp, err)
	}
	if dropped := len(parts.policy) - len(fitted.policy); dropped > 0 {
		t.warn("Dropped %d lower-ranked policy passage(s) to fit the prompt size limit.", dropped)
	}
	if dropped := len(parts.history) - len(fitted.history); dropped > 0 {
		t.warn("Dropped %d earlier conversation turn(s) to fit the prompt size limit.", dropped)
	}

	answer, err := s.generate(ctx, prompt)
	if err != nil {
		return t.fail(resp, err)
	}

	t.enter(StateFormatting)
	resp.Sources = citedSources(fitted.policy)
	resp.Answer = formatAnswer(answer, resp.Sources)

	t.enter(StateDone)
	resp.Warnings = t.warnings
	resp.Trace = t.trace
	t.log.WithFields(logrus.Fields{
		"type":     class.Type,
		"sources":  len(resp.Sources),
		"warnings": len(resp.Warnings),
		"duration": time.Since(t.started),
	}).Info("answered query")
	return resp, nil
}

func (s *Service) employeeContext(id, query string) (string, error) {
	if s.records == nil {
		return "", errors.New("employee records are not loaded")
	}
	return buildEmployeeContext(s.records, id, query, s.opts.Now())
}

func (s *Service) policyContext(ctx context.Context, query string) ([]index.Result, error) {
	if s.policies == nil || s.policies.Len() == 0 {
		return nil, ErrNoDocuments
	}
	results, err := s.policies.Query(ctx, query, s.opts.RetrievalK)
	if err != nil {
		return nil, fmt.Errorf("search policies: %w", err)
	}
	return results, nil
}

func (s *Service) noteRetrieval(t *turn, employeeID string, employeeErr, policyErr error, noMatches bool) {
	switch {
	case employeeErr == nil:
	case errors.Is(employeeErr, employees.ErrEmployeeNotFound):
		t.warn("Employee ID %s was not found; answering without personal records.", employeeID)
	default:
		t.warn("Employee records could not be read: %v", employeeErr)
	}

	switch {
	case policyErr == nil:
		if noMatches {
			t.warn("No policy passage matched the question closely enough.")
		}
	case errors.Is(policyErr, ErrNoDocuments):
		t.warn("No policy documents are loaded; load documents first for policy answers.")
	case errors.Is(policyErr, embeddings.ErrUnavailable):
		t.warn("Policy search is unavailable because the embedding service could not be reached.")
	default:
		t.warn("Policy search failed: %v", policyErr)
	}

	if employeeErr != nil || policyErr != nil {
		t.log.WithFields(logrus.Fields{
			"employee_error": errString(employeeErr),
			"policy_error":   errString(policyErr),
		}).Warn("retrieval degraded")
	}
}

type generation struct {
	text string
	err  error
}

// generate calls the model under the configured timeout. The deadline holds
// even if the client ignores its context.
func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	done := make(chan generation, 1)
	go func() {
		text, err := s.llm.Generate(genCtx, prompt, s.opts.Params)
		done <- generation{text: text, err: err}
	}()

	select {
	case result := <-done:
		if result.err != nil {
			if errors.Is(result.err, llm.ErrUnavailable) {
				return "", result.err
			}
			return "", llm.Unavailable("llm", 0, result.err)
		}
		text := strings.TrimSpace(result.text)
		if text == "" {
			return "", llm.Unavailable("llm", 0, errors.New("model returned an empty answer"))
		}
		return text, nil
	case <-genCtx.Done():
		return "", llm.Unavailable("llm", 0, fmt.Errorf("generation stopped after %s: %w", s.opts.Timeout, genCtx.Err()))
	}
}

// Greeting is the opening message shown before the first question.
func (s *Service) Greeting(employeeID string) string {
	if s.records != nil && employeeID != "" {
		if record, err := s.records.Get(employeeID); err == nil && record.FirstName() != "" {
			return fmt.Sprintf("Hello %s! I'm your HR Copilot assistant.\n\n"+
				"I can help you with:\n"+
				"- HR policies (leave, benefits, onboarding)\n"+
				"- Your leave balance and personal HR info\n"+
				"- Manager and team information\n"+
				"- Any other HR-related questions\n\n"+
				"What would you like to know?", record.FirstName())
		}
	}
	return "Welcome to HR Copilot!\n\n" +
		"I can help you with:\n" +
		"- HR policies and procedures\n" +
		"- Employee information and leave balances\n" +
		"- Manager and team details\n" +
		"- Any HR-related questions\n\n" +
		"Select your employee ID to get personalised assistance."
}

func citedSources(passages []index.Result) []string {
	seen := make(map[string]struct{}, len(passages))
	sources := make([]string, 0, len(passages))
	for _, passage := range passages {
		if _, ok := seen[passage.Chunk.Source]; ok {
			continue
		}
		seen[passage.Chunk.Source] = struct{}{}
		sources = append(sources, passage.Chunk.Source)
	}
	return sources
}

func formatAnswer(answer string, sources []string) string {
	if len(sources) == 0 {
		return answer
	}
	return answer + "\n\n---\n**Sources:** " + strings.Join(sources, ", ")
}

func lastTurns(turns []Turn, n int) []Turn {
	if n <= 0 || len(turns) == 0 {
		return nil
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return append([]Turn(nil), turns...)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

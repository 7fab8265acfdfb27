package chat

import (
	"context"
	"errors"

	"github.com/fabfab/hr-copilot/classify"
	"github.com/fabfab/hr-copilot/employees"
	"github.com/fabfab/hr-copilot/index"
)

var (
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrNoDocuments is returned when a query needs policy context but no
	// policy document has been ingested.
	ErrNoDocuments = errors.New("no policy documents loaded")
	// ErrPromptTooLarge is returned when the prompt still exceeds the size
	// limit after all policy passages and prior turns were dropped.
	ErrPromptTooLarge = errors.New("prompt too large")
)

type RecordSource interface {
	Get(id string) (employees.Record, error)
	LeaveBalance(id string) (employees.LeaveBalance, error)
	Manager(id string) (employees.ManagerInfo, error)
	Department(id string) (employees.DepartmentInfo, error)
}

type PolicyIndex interface {
	Len() int
	Query(ctx context.Context, text string, k int) ([]index.Result, error)
}

var (
	_ RecordSource = (*employees.Store)(nil)
	_ PolicyIndex  = (*index.Index)(nil)
)

// Turn is one earlier exchange, passed back in by the caller.
type Turn struct {
	Query  string `json:"query"`
	Answer string `json:"answer"`
}

type Request struct {
	Query      string
	EmployeeID string
	PriorTurns []Turn
}

type Response struct {
	Answer         string
	Sources        []string
	Warnings       []string
	Classification classify.Result
	Trace          []State
}

type State string

const (
	StateIdle        State = "idle"
	StateClassifying State = "classifying"
	StateRetrieving  State = "retrieving"
	StateGenerating  State = "generating"
	StateFormatting  State = "formatting"
	StateDone        State = "done"
	StateErrored     State = "errored"
)

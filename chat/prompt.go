package chat

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fabfab/hr-copilot/employees"
	"github.com/fabfab/hr-copilot/index"
)

const persona = "You are an HR Copilot AI assistant helping employees with HR-related questions. " +
	"You provide accurate, helpful, and friendly responses based on company policies and employee data. " +
	"Always maintain a professional yet warm tone."

const instructions = `Instructions:
1. Answer the question accurately based on the provided information
2. If using employee data, personalize the response
3. If using policy information, cite the source
4. Be concise but complete
5. If information is not available, say so politely
6. Use bullet points for lists
7. Be friendly and professional`

var (
	leaveWords    = []string{"leave", "balance", "casual", "sick", "earned"}
	managerWords  = []string{"manager", "supervisor", "boss"}
	teamWords     = []string{"department", "team", "role"}
	passageJoiner = "\n---\n"
)

type promptParts struct {
	query    string
	history  []Turn
	employee string
	// policy is ordered by descending similarity.
	policy []index.Result
}

func buildPrompt(p promptParts) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")

	if len(p.history) > 0 {
		b.WriteString("Previous conversation:\n")
		for _, t := range p.history {
			fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", t.Query, t.Answer)
		}
		b.WriteString("\n")
	}

	if p.employee != "" {
		b.WriteString("Employee Information:\n")
		b.WriteString(p.employee)
		b.WriteString("\n\n")
	}

	if len(p.policy) > 0 {
		b.WriteString("Relevant Policy Information:\n")
		passages := make([]string, 0, len(p.policy))
		for i, result := range p.policy {
			passages = append(passages, fmt.Sprintf("[Source %d: %s]\n%s", i+1, sourceLabel(result), result.Chunk.Text))
		}
		b.WriteString(strings.Join(passages, passageJoiner))
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "User Question: %s\n\n", p.query)
	b.WriteString(instructions)
	b.WriteString("\n\nYour Response:")
	return b.String()
}

func sourceLabel(result index.Result) string {
	if result.Chunk.Page > 0 {
		return fmt.Sprintf("%s, page %d", result.Chunk.Source, result.Chunk.Page)
	}
	return result.Chunk.Source
}

// fitPrompt drops the lowest-ranked passages first and then the oldest
// turns until the prompt fits in limit characters. Employee data and the
// question are never cut.
func fitPrompt(p promptParts, limit int) (string, promptParts, error) {
	for {
		prompt := buildPrompt(p)
		size := utf8.RuneCountInString(prompt)
		if size <= limit {
			return prompt, p, nil
		}
		switch {
		case len(p.policy) > 0:
			p.policy = p.policy[:len(p.policy)-1]
		case len(p.history) > 0:
			p.history = p.history[1:]
		default:
			return "", p, fmt.Errorf("%w: %d characters with limit %d", ErrPromptTooLarge, size, limit)
		}
	}
}

func buildEmployeeContext(records RecordSource, id, query string, now time.Time) (string, error) {
	record, err := records.Get(id)
	if err != nil {
		return "", err
	}

	lower := strings.ToLower(query)
	var blocks []string

	if mentions(lower, leaveWords) {
		balance, err := records.LeaveBalance(id)
		if err != nil {
			return "", err
		}
		blocks = append(blocks, fmt.Sprintf("Leave Balance for %s:\n"+
			"- Casual Leave: %d days\n"+
			"- Sick Leave: %d days\n"+
			"- Earned Leave: %d days\n"+
			"- Total: %d days",
			balance.Name, balance.Casual, balance.Sick, balance.Earned, balance.Total()))
	}

	if mentions(lower, managerWords) {
		manager, err := records.Manager(id)
		if err != nil {
			return "", err
		}
		blocks = append(blocks, fmt.Sprintf("Manager Information for %s:\n"+
			"- Manager: %s\n"+
			"- Role: %s\n"+
			"- Email: %s\n"+
			"- Phone: %s",
			manager.EmployeeName, manager.Name, manager.Role, manager.Email, manager.Phone))
	}

	if mentions(lower, teamWords) {
		dept, err := records.Department(id)
		if err != nil {
			return "", err
		}
		blocks = append(blocks, fmt.Sprintf("Department Information for %s:\n"+
			"- Department: %s\n"+
			"- Role: %s\n"+
			"- Manager: %s\n"+
			"- Team Size: %d\n"+
			"- Joining Date: %s",
			dept.Name, dept.Department, dept.Role, dept.Manager, dept.TeamSize, employees.FormatDate(dept.JoiningDate)))
	}

	if len(blocks) == 0 {
		blocks = append(blocks, fmt.Sprintf("Employee Profile:\n"+
			"- Name: %s\n"+
			"- Employee ID: %s\n"+
			"- Department: %s\n"+
			"- Role: %s\n"+
			"- Manager: %s\n"+
			"- Joining Date: %s\n"+
			"- Tenure: %s",
			record.Name, record.ID, record.Department, record.Role, notAvailable(record.Manager),
			employees.FormatDate(record.JoiningDate), record.Tenure(now)))
	}

	return strings.Join(blocks, "\n\n"), nil
}

func mentions(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func notAvailable(value string) string {
	if value == "" {
		return "N/A"
	}
	return value
}

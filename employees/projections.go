package employees

import (
	"fmt"
	"strings"
	"time"
)

const notAvailable = "N/A"

type LeaveBalance struct {
	ID     string
	Name   string
	Casual int
	Sick   int
	Earned int
}

func (b LeaveBalance) Total() int { return b.Casual + b.Sick + b.Earned }

type ManagerInfo struct {
	EmployeeName string
	// Found reports whether the manager has a record of their own.
	Found      bool
	Name       string
	Email      string
	Phone      string
	Role       string
	Department string
}

type DepartmentInfo struct {
	ID          string
	Name        string
	Department  string
	Role        string
	Manager     string
	TeamSize    int
	JoiningDate time.Time
}

func (s *Store) LeaveBalance(id string) (LeaveBalance, error) {
	record, err := s.Get(id)
	if err != nil {
		return LeaveBalance{}, err
	}
	return LeaveBalance{
		ID:     record.ID,
		Name:   record.Name,
		Casual: record.CasualLeave,
		Sick:   record.SickLeave,
		Earned: record.EarnedLeave,
	}, nil
}

// Manager resolves the manager reference by id first and then by name.
// A reference that matches nobody still yields the referenced name with
// N/A details.
func (s *Store) Manager(id string) (ManagerInfo, error) {
	record, err := s.Get(id)
	if err != nil {
		return ManagerInfo{}, err
	}

	info := ManagerInfo{
		EmployeeName: record.Name,
		Name:         record.Manager,
		Email:        notAvailable,
		Phone:        notAvailable,
		Role:         notAvailable,
		Department:   notAvailable,
	}
	if record.Manager == "" {
		info.Name = notAvailable
		return info, nil
	}

	manager, ok := s.resolve(record.Manager)
	if !ok {
		return info, nil
	}
	return ManagerInfo{
		EmployeeName: record.Name,
		Found:        true,
		Name:         manager.Name,
		Email:        orNA(manager.Email),
		Phone:        orNA(manager.Phone),
		Role:         orNA(manager.Role),
		Department:   orNA(manager.Department),
	}, nil
}

func (s *Store) Department(id string) (DepartmentInfo, error) {
	record, err := s.Get(id)
	if err != nil {
		return DepartmentInfo{}, err
	}

	team := 0
	for _, other := range s.records {
		if other.Department == record.Department {
			team++
		}
	}

	manager := notAvailable
	if record.Manager != "" {
		manager = record.Manager
		if resolved, ok := s.resolve(record.Manager); ok {
			manager = resolved.Name
		}
	}

	return DepartmentInfo{
		ID:          record.ID,
		Name:        record.Name,
		Department:  record.Department,
		Role:        record.Role,
		Manager:     manager,
		TeamSize:    team,
		JoiningDate: record.JoiningDate,
	}, nil
}

func (s *Store) resolve(ref string) (Record, bool) {
	if idx, ok := s.byID[ref]; ok {
		return s.records[idx], true
	}
	for _, record := range s.records {
		if strings.EqualFold(record.Name, ref) {
			return record, true
		}
	}
	return Record{}, false
}

// ValidID reports whether id has the expected shape: an "E" followed by at
// least three more characters.
func ValidID(id string) bool {
	id = strings.TrimSpace(id)
	return strings.HasPrefix(id, "E") && len(id) >= 4
}

// FirstName is the first word of the record's name.
func (r Record) FirstName() string {
	fields := strings.Fields(r.Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Tenure describes the time since joining, in whole years and months.
func (r Record) Tenure(now time.Time) string {
	if r.JoiningDate.IsZero() {
		return "Unknown"
	}
	years := now.Year() - r.JoiningDate.Year()
	months := int(now.Month()) - int(r.JoiningDate.Month())
	if months < 0 {
		years--
		months += 12
	}
	if years < 0 {
		return "Unknown"
	}

	switch {
	case years > 0 && months > 0:
		return fmt.Sprintf("%s %s", plural(years, "year"), plural(months, "month"))
	case years > 0:
		return plural(years, "year")
	default:
		return plural(months, "month")
	}
}

// FormatDate renders a date like "March 15, 2021".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return notAvailable
	}
	return t.Format("January 02, 2006")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func orNA(value string) string {
	if value == "" {
		return notAvailable
	}
	return value
}

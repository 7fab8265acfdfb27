// Package employees loads the employee table and answers lookups against it.
// A Store is read-only once loaded and safe for concurrent use.
package employees

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidSchema    = errors.New("invalid employee table")
	ErrEmployeeNotFound = errors.New("employee not found")
)

const dateLayout = "2006-01-02"

const (
	colID          = "empid"
	colName        = "name"
	colEmail       = "email"
	colPhone       = "phone"
	colDepartment  = "department"
	colRole        = "role"
	colManager     = "manager"
	colManagerID   = "managerid"
	colJoiningDate = "joiningdate"
	colCasual      = "casualleave"
	colSick        = "sickleave"
	colEarned      = "earnedleave"
)

var requiredColumns = []string{colID, colName, colDepartment, colRole, colCasual, colSick, colEarned}

type Record struct {
	ID          string
	Name        string
	Email       string
	Phone       string
	Department  string
	Role        string
	Manager     string
	JoiningDate time.Time
	CasualLeave int
	SickLeave   int
	EarnedLeave int
}

type Store struct {
	records []Record
	byID    map[string]int
}

// Load reads a .csv or .xlsx employee table.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open employee table: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(f)
	case ".xlsx":
		return LoadXLSX(f)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", ErrInvalidSchema, filepath.Ext(path))
	}
}

func newStore(rows [][]string) (*Store, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: missing header row", ErrInvalidSchema)
	}

	columns := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		columns[normalizeHeader(name)] = i
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", ErrInvalidSchema, strings.Join(missing, ", "))
	}
	if _, ok := columns[colManager]; !ok {
		if idx, ok := columns[colManagerID]; ok {
			columns[colManager] = idx
		}
	}

	store := &Store{byID: make(map[string]int)}
	for n, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		line := n + 2
		record, err := parseRecord(columns, row)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrInvalidSchema, line, err)
		}
		if _, dup := store.byID[record.ID]; dup {
			return nil, fmt.Errorf("%w: row %d: duplicate employee id %q", ErrInvalidSchema, line, record.ID)
		}
		store.records = append(store.records, record)
	}

	slices.SortFunc(store.records, func(a, b Record) int { return strings.Compare(a.ID, b.ID) })
	for i, record := range store.records {
		store.byID[record.ID] = i
	}
	return store, nil
}

func parseRecord(columns map[string]int, row []string) (Record, error) {
	field := func(col string) string {
		idx, ok := columns[col]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	record := Record{
		ID:         field(colID),
		Name:       field(colName),
		Email:      field(colEmail),
		Phone:      field(colPhone),
		Department: field(colDepartment),
		Role:       field(colRole),
		Manager:    field(colManager),
	}
	if record.ID == "" {
		return Record{}, errors.New("empty employee id")
	}

	var err error
	if record.CasualLeave, err = parseBalance(colCasual, field(colCasual)); err != nil {
		return Record{}, err
	}
	if record.SickLeave, err = parseBalance(colSick, field(colSick)); err != nil {
		return Record{}, err
	}
	if record.EarnedLeave, err = parseBalance(colEarned, field(colEarned)); err != nil {
		return Record{}, err
	}

	if raw := field(colJoiningDate); raw != "" {
		joined, err := time.Parse(dateLayout, raw)
		if err != nil {
			return Record{}, fmt.Errorf("joining date %q is not YYYY-MM-DD", raw)
		}
		record.JoiningDate = joined
	}
	return record, nil
}

func parseBalance(col, raw string) (int, error) {
	if raw == "" {
		return 0, fmt.Errorf("%s is empty", col)
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		// Spreadsheets often store whole numbers as "12.0".
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, fmt.Errorf("%s %q is not a whole number", col, raw)
		}
		value = int(f)
	}
	if value < 0 {
		return 0, fmt.Errorf("%s %d is negative", col, value)
	}
	return value, nil
}

func normalizeHeader(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-', '\ufeff':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(name)))
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (Record, error) {
	idx, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrEmployeeNotFound, id)
	}
	return s.records[idx], nil
}

func (s *Store) Len() int { return len(s.records) }

// Records returns a copy of every record, ordered by id.
func (s *Store) Records() []Record {
	return append([]Record(nil), s.records...)
}

// IDs lists every employee id in ascending order.
func (s *Store) IDs() []string {
	ids := make([]string, len(s.records))
	for i, record := range s.records {
		ids[i] = record.ID
	}
	return ids
}

// Search returns records whose name starts with prefix, ignoring case,
// ordered by id.
func (s *Store) Search(prefix string) []Record {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	var matches []Record
	for _, record := range s.records {
		if strings.HasPrefix(strings.ToLower(record.Name), prefix) {
			matches = append(matches, record)
		}
	}
	return matches
}

// ByDepartment returns records whose department contains name, ignoring
// case, ordered by id.
func (s *Store) ByDepartment(name string) []Record {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil
	}
	var matches []Record
	for _, record := range s.records {
		if strings.Contains(strings.ToLower(record.Department), name) {
			matches = append(matches, record)
		}
	}
	return matches
}

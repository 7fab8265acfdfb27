package employees_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/fabfab/hr-copilot/employees"
)

const sampleCSV = `EmpID,Name,Email,Phone,Department,Role,Manager,JoiningDate,CasualLeave,SickLeave,EarnedLeave
E003,Carol Diaz,carol@example.com,555-0103,Engineering,Engineer,Alice Smith,2022-01-10,8,5,12
E001,Alice Smith,alice@example.com,555-0101,Engineering,Engineering Manager,,2019-03-15,10,6,20
E002,Bob Jones,bob@example.com,555-0102,Finance,Analyst,E004,2023-07-01,4,2,1
E004,alicia Keys,alicia@example.com,555-0104,Finance,Finance Lead,Zed Unknown,2018-11-30,12,12,30
`

func loadSample(t *testing.T) *employees.Store {
	t.Helper()
	store, err := employees.LoadCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("LoadCSV returned error: %v", err)
	}
	return store
}

func TestLoadCSVAndGet(t *testing.T) {
	store := loadSample(t)

	if store.Len() != 4 {
		t.Fatalf("expected 4 records, got %d", store.Len())
	}
	record, err := store.Get("E001")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if record.Name != "Alice Smith" || record.CasualLeave != 10 || record.EarnedLeave != 20 {
		t.Fatalf("unexpected record: %+v", record)
	}
	if !record.JoiningDate.Equal(time.Date(2019, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected joining date: %v", record.JoiningDate)
	}

	ids := store.IDs()
	if strings.Join(ids, ",") != "E001,E002,E003,E004" {
		t.Fatalf("expected sorted ids, got %v", ids)
	}
}

func TestGetUnknownEmployee(t *testing.T) {
	store := loadSample(t)

	for _, id := range []string{"E999", "", "e001"} {
		record, err := store.Get(id)
		if !errors.Is(err, employees.ErrEmployeeNotFound) {
			t.Fatalf("expected ErrEmployeeNotFound for %q, got %v", id, err)
		}
		if record != (employees.Record{}) {
			t.Fatalf("expected zero record for %q, got %+v", id, record)
		}
	}

	if _, err := store.LeaveBalance("E999"); !errors.Is(err, employees.ErrEmployeeNotFound) {
		t.Fatalf("LeaveBalance: expected ErrEmployeeNotFound, got %v", err)
	}
	if _, err := store.Manager("E999"); !errors.Is(err, employees.ErrEmployeeNotFound) {
		t.Fatalf("Manager: expected ErrEmployeeNotFound, got %v", err)
	}
	if _, err := store.Department("E999"); !errors.Is(err, employees.ErrEmployeeNotFound) {
		t.Fatalf("Department: expected ErrEmployeeNotFound, got %v", err)
	}
}

func TestLoadCSVInvalidSchema(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{name: "missing leave column", csv: "EmpID,Name,Department,Role,CasualLeave,SickLeave\nE001,A,Eng,Dev,1,2\n"},
		{name: "empty table", csv: ""},
		{name: "negative balance", csv: "EmpID,Name,Department,Role,CasualLeave,SickLeave,EarnedLeave\nE001,A,Eng,Dev,-1,2,3\n"},
		{name: "text balance", csv: "EmpID,Name,Department,Role,CasualLeave,SickLeave,EarnedLeave\nE001,A,Eng,Dev,many,2,3\n"},
		{name: "duplicate id", csv: "EmpID,Name,Department,Role,CasualLeave,SickLeave,EarnedLeave\nE001,A,Eng,Dev,1,2,3\nE001,B,Eng,Dev,1,2,3\n"},
		{name: "bad date", csv: "EmpID,Name,Department,Role,CasualLeave,SickLeave,EarnedLeave,JoiningDate\nE001,A,Eng,Dev,1,2,3,15/03/2019\n"},
		{name: "empty id", csv: "EmpID,Name,Department,Role,CasualLeave,SickLeave,EarnedLeave\n,A,Eng,Dev,1,2,3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := employees.LoadCSV(strings.NewReader(tt.csv)); !errors.Is(err, employees.ErrInvalidSchema) {
				t.Fatalf("expected ErrInvalidSchema, got %v", err)
			}
		})
	}
}

func TestLoadCSVNormalizesHeaders(t *testing.T) {
	csv := "Emp ID,name,DEPARTMENT,Role,casual_leave,Sick-Leave,Earned Leave,Manager ID\nE010,Dana,Ops,Lead,3.0,2,1,\n"
	store, err := employees.LoadCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("LoadCSV returned error: %v", err)
	}
	record, err := store.Get("E010")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if record.CasualLeave != 3 || record.Department != "Ops" {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestProjections(t *testing.T) {
	store := loadSample(t)

	balance, err := store.LeaveBalance("E001")
	if err != nil {
		t.Fatalf("LeaveBalance returned error: %v", err)
	}
	if balance.Casual != 10 || balance.Total() != 36 {
		t.Fatalf("unexpected balance: %+v total=%d", balance, balance.Total())
	}

	byName, err := store.Manager("E003")
	if err != nil {
		t.Fatalf("Manager returned error: %v", err)
	}
	if !byName.Found || byName.Name != "Alice Smith" || byName.Email != "alice@example.com" {
		t.Fatalf("expected manager resolved by name, got %+v", byName)
	}

	byID, _ := store.Manager("E002")
	if !byID.Found || byID.Name != "alicia Keys" {
		t.Fatalf("expected manager resolved by id, got %+v", byID)
	}

	unknown, _ := store.Manager("E004")
	if unknown.Found || unknown.Name != "Zed Unknown" || unknown.Email != "N/A" {
		t.Fatalf("expected N/A details for unknown manager, got %+v", unknown)
	}

	none, _ := store.Manager("E001")
	if none.Found || none.Name != "N/A" {
		t.Fatalf("expected N/A manager, got %+v", none)
	}

	dept, err := store.Department("E002")
	if err != nil {
		t.Fatalf("Department returned error: %v", err)
	}
	if dept.Department != "Finance" || dept.TeamSize != 2 || dept.Manager != "alicia Keys" {
		t.Fatalf("unexpected department info: %+v", dept)
	}
}

func TestSearchByNamePrefix(t *testing.T) {
	store := loadSample(t)

	matches := store.Search("ALI")
	if len(matches) != 2 || matches[0].ID != "E001" || matches[1].ID != "E004" {
		t.Fatalf("expected E001 and E004 in id order, got %+v", matches)
	}
	if matches := store.Search("smith"); len(matches) != 0 {
		t.Fatalf("expected prefix-only matching, got %+v", matches)
	}
	if matches := store.Search(""); len(matches) != 4 {
		t.Fatalf("expected every record for empty prefix, got %d", len(matches))
	}
}

func TestByDepartment(t *testing.T) {
	store := loadSample(t)
	matches := store.ByDepartment("fin")
	if len(matches) != 2 || matches[0].ID != "E002" {
		t.Fatalf("unexpected department matches: %+v", matches)
	}
}

func TestTenureAndFormatting(t *testing.T) {
	joined := employees.Record{JoiningDate: time.Date(2019, 3, 15, 0, 0, 0, 0, time.UTC)}
	tests := []struct {
		now  time.Time
		want string
	}{
		{now: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), want: "5 years 2 months"},
		{now: time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC), want: "1 year"},
		{now: time.Date(2019, 4, 1, 0, 0, 0, 0, time.UTC), want: "1 month"},
		{now: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), want: "1 year 10 months"},
	}
	for _, tt := range tests {
		if got := joined.Tenure(tt.now); got != tt.want {
			t.Fatalf("Tenure(%v) = %q, want %q", tt.now, got, tt.want)
		}
	}
	if got := (employees.Record{}).Tenure(time.Now()); got != "Unknown" {
		t.Fatalf("expected Unknown tenure, got %q", got)
	}
	if got := employees.FormatDate(joined.JoiningDate); got != "March 15, 2019" {
		t.Fatalf("unexpected formatted date %q", got)
	}
}

func TestValidID(t *testing.T) {
	for id, want := range map[string]bool{"E001": true, "E12345": true, "E01": false, "X001": false, "": false} {
		if got := employees.ValidID(id); got != want {
			t.Fatalf("ValidID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestLoadXLSX(t *testing.T) {
	book := excelize.NewFile()
	defer book.Close()

	sheet := book.GetSheetName(0)
	rows := [][]any{
		{"EmpID", "Name", "Department", "Role", "CasualLeave", "SickLeave", "EarnedLeave"},
		{"E001", "Alice Smith", "Engineering", "Manager", 10, 6, 20},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := book.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := book.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	path := filepath.Join(t.TempDir(), "employees.xlsx")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	store, err := employees.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	balance, err := store.LeaveBalance("E001")
	if err != nil || balance.Casual != 10 {
		t.Fatalf("unexpected balance %+v, err %v", balance, err)
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "employees.json")
	if err := os.WriteFile(path, []byte("[]"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := employees.Load(path); !errors.Is(err, employees.ErrInvalidSchema) {
		t.Fatalf("expected ErrInvalidSchema, got %v", err)
	}
}

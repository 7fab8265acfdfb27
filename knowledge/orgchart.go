// Package knowledge mirrors the employee table into Neo4j as an org chart.
package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fabfab/hr-copilot/employees"
)

type Stats struct {
	Employees   int
	Departments int
	ReportsTo   int
}

type orgChart struct {
	employees   []map[string]any
	reportsTo   []map[string]any
	departments int
}

// buildOrgChart turns records into query parameters. Manager references are
// resolved by id first and then by name; references that match nobody, and
// self references, produce no REPORTS_TO edge.
func buildOrgChart(records []employees.Record) orgChart {
	byID := make(map[string]string, len(records))
	byName := make(map[string]string, len(records))
	for _, record := range records {
		byID[record.ID] = record.ID
		name := strings.ToLower(strings.TrimSpace(record.Name))
		if _, taken := byName[name]; !taken {
			byName[name] = record.ID
		}
	}

	chart := orgChart{}
	departments := make(map[string]struct{})
	for _, record := range records {
		joined := ""
		if !record.JoiningDate.IsZero() {
			joined = record.JoiningDate.Format("2006-01-02")
		}
		chart.employees = append(chart.employees, map[string]any{
			"id":         record.ID,
			"name":       record.Name,
			"email":      record.Email,
			"phone":      record.Phone,
			"role":       record.Role,
			"department": record.Department,
			"joined":     joined,
		})
		if record.Department != "" {
			departments[record.Department] = struct{}{}
		}

		ref := strings.TrimSpace(record.Manager)
		if ref == "" {
			continue
		}
		managerID, ok := byID[ref]
		if !ok {
			managerID, ok = byName[strings.ToLower(ref)]
		}
		if !ok || managerID == record.ID {
			continue
		}
		chart.reportsTo = append(chart.reportsTo, map[string]any{
			"id":         record.ID,
			"manager_id": managerID,
		})
	}
	chart.departments = len(departments)
	return chart
}

// SyncOrgChart replaces the Employee and Department graph with the given
// records in a single write transaction.
func SyncOrgChart(ctx context.Context, driver neo4j.DriverWithContext, records []employees.Record) (Stats, error) {
	if driver == nil {
		return Stats{}, fmt.Errorf("neo4j driver is nil")
	}

	chart := buildOrgChart(records)
	ids := make([]string, len(records))
	for i, record := range records {
		ids[i] = record.ID
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MATCH (e:Employee)
			WHERE NOT e.id IN $ids
			DETACH DELETE e
		`, map[string]any{"ids": ids}); err != nil {
			return nil, fmt.Errorf("remove departed employees: %w", err)
		}

		if _, err := tx.Run(ctx, `
			UNWIND $employees AS emp
			MERGE (e:Employee {id: emp.id})
			SET e.name = emp.name,
			    e.email = emp.email,
			    e.phone = emp.phone,
			    e.role = emp.role,
			    e.joined = emp.joined,
			    e.updated_at = datetime()
			WITH e, emp
			OPTIONAL MATCH (e)-[r:IN_DEPARTMENT|REPORTS_TO]->()
			DELETE r
		`, map[string]any{"employees": chart.employees}); err != nil {
			return nil, fmt.Errorf("upsert employee nodes: %w", err)
		}

		if _, err := tx.Run(ctx, `
			UNWIND $employees AS emp
			WITH emp WHERE emp.department <> ''
			MATCH (e:Employee {id: emp.id})
			MERGE (d:Department {name: emp.department})
			MERGE (e)-[:IN_DEPARTMENT]->(d)
		`, map[string]any{"employees": chart.employees}); err != nil {
			return nil, fmt.Errorf("link departments: %w", err)
		}

		if _, err := tx.Run(ctx, `
			UNWIND $edges AS edge
			MATCH (e:Employee {id: edge.id}), (m:Employee {id: edge.manager_id})
			MERGE (e)-[:REPORTS_TO]->(m)
		`, map[string]any{"edges": chart.reportsTo}); err != nil {
			return nil, fmt.Errorf("link managers: %w", err)
		}

		if _, err := tx.Run(ctx, `
			MATCH (d:Department)
			WHERE NOT (d)<-[:IN_DEPARTMENT]-(:Employee)
			DELETE d
		`, nil); err != nil {
			return nil, fmt.Errorf("remove empty departments: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		Employees:   len(chart.employees),
		Departments: chart.departments,
		ReportsTo:   len(chart.reportsTo),
	}, nil
}

// DirectReports lists the ids of employees reporting to managerID.
func DirectReports(ctx context.Context, driver neo4j.DriverWithContext, managerID string) ([]string, error) {
	if driver == nil {
		return nil, fmt.Errorf("neo4j driver is nil")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	ids, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MATCH (e:Employee)-[:REPORTS_TO]->(:Employee {id: $id})
			RETURN e.id AS id
			ORDER BY id
		`, map[string]any{"id": managerID})
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(records))
		for _, record := range records {
			if id, ok := record.Get("id"); ok {
				if s, ok := id.(string); ok {
					out = append(out, s)
				}
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("query direct reports: %w", err)
	}
	return ids.([]string), nil
}

// Purge removes every org chart node.
func Purge(ctx context.Context, driver neo4j.DriverWithContext) error {
	if driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, "MATCH (n) WHERE n:Employee OR n:Department DETACH DELETE n", nil)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("purge org chart: %w", err)
	}
	return nil
}

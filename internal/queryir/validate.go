package queryir

import (
	"fmt"
	"strings"
)

// Validate checks structural rules the parser cannot express in the grammar:
//  1. Every statement names a table (SELECT without FROM excepted)
//  2. CREATE TABLE declares at least one column and no duplicates
//  3. INSERT rows match the column list arity
//  4. UPDATE assigns each column at most once
//  5. ALTER TABLE has at least one action
//
// Validate is a pure function with no side effects. It returns the first
// violation found.
func Validate(s Statement) error {
	if s == nil {
		return fmt.Errorf("nil statement")
	}
	if _, isSelect := s.(*Select); !isSelect && StatementTable(s) == "" {
		return fmt.Errorf("%s statement has no table name", s.Kind())
	}

	switch st := s.(type) {
	case *CreateTable:
		if len(st.Columns) == 0 {
			return fmt.Errorf("CREATE TABLE %s declares no columns", st.Table)
		}
		return checkUnique("column", columnNames(st.Columns))

	case *Insert:
		if len(st.Columns) == 0 {
			return fmt.Errorf("INSERT INTO %s has no column list", st.Table)
		}
		if err := checkUnique("column", st.Columns); err != nil {
			return err
		}
		if len(st.Rows) == 0 {
			return fmt.Errorf("INSERT INTO %s has no VALUES rows", st.Table)
		}
		for i, row := range st.Rows {
			if len(row) != len(st.Columns) {
				return fmt.Errorf("VALUES row %d has %d values for %d columns", i+1, len(row), len(st.Columns))
			}
		}

	case *Select:
		if !st.Star && len(st.Items) == 0 {
			return fmt.Errorf("SELECT has no result columns")
		}

	case *Update:
		if len(st.Set) == 0 {
			return fmt.Errorf("UPDATE %s has no assignments", st.Table)
		}
		names := make([]string, len(st.Set))
		for i, a := range st.Set {
			names[i] = a.Column
		}
		return checkUnique("assignment", names)

	case *AlterTable:
		if len(st.Actions) == 0 {
			return fmt.Errorf("ALTER TABLE %s has no actions", st.Table)
		}
	}
	return nil
}

func columnNames(cols []*ColumnDef) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// checkUnique rejects case-insensitive duplicates, matching SQLite's
// identifier rules.
func checkUnique(what string, names []string) error {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		key := strings.ToLower(n)
		if seen[key] {
			return fmt.Errorf("duplicate %s %q", what, n)
		}
		seen[key] = true
	}
	return nil
}

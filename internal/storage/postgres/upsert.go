package postgres

import (
	"fmt"
	"strconv"
	"strings"
)

// maxBindParams is the Postgres wire protocol limit on parameters per statement.
const maxBindParams = 65535

// upsertStatement renders multi-row INSERT ... ON CONFLICT DO UPDATE queries.
// created_at and updated_at are maintained automatically.
type upsertStatement struct {
	table     string
	columns   []string
	conflict  []string
	update    []string
	returning string
}

func (u upsertStatement) validate() error {
	idents := append([]string{u.table}, u.columns...)
	idents = append(idents, u.conflict...)
	idents = append(idents, u.update...)
	if u.returning != "" {
		idents = append(idents, u.returning)
	}
	for _, ident := range idents {
		if !validIdentifier.MatchString(ident) {
			return fmt.Errorf("invalid identifier %q", ident)
		}
	}
	if len(u.columns) == 0 || len(u.conflict) == 0 {
		return fmt.Errorf("upsert into %s requires columns and a conflict key", u.table)
	}
	return nil
}

// maxRows is the largest number of rows one statement can bind.
func (u upsertStatement) maxRows() int {
	return maxBindParams / len(u.columns)
}

// sql renders the statement for rows value tuples.
func (u upsertStatement) sql(rows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(u.table)
	b.WriteString(" (")
	b.WriteString(strings.Join(u.columns, ", "))
	b.WriteString(", created_at, updated_at) VALUES ")
	param := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range u.columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(param))
			param++
		}
		b.WriteString(", now(), now())")
	}
	b.WriteString(" ON CONFLICT (")
	b.WriteString(strings.Join(u.conflict, ", "))
	b.WriteString(") DO UPDATE SET ")
	for i, col := range u.update {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(col)
		b.WriteString(" = EXCLUDED.")
		b.WriteString(col)
	}
	if len(u.update) > 0 {
		b.WriteString(", ")
	}
	b.WriteString("updated_at = EXCLUDED.updated_at")
	if u.returning != "" {
		b.WriteString(" RETURNING ")
		b.WriteString(u.returning)
	}
	return b.String()
}

// args flattens rows into positional arguments, checking their width.
func (u upsertStatement) args(rows [][]any) ([]any, error) {
	out := make([]any, 0, len(rows)*len(u.columns))
	for i, row := range rows {
		if len(row) != len(u.columns) {
			return nil, fmt.Errorf("%s row %d has %d values, want %d", u.table, i, len(row), len(u.columns))
		}
		out = append(out, row...)
	}
	return out, nil
}

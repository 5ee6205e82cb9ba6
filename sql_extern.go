package problog

import (
	"database/sql"
	"fmt"
	"strings"
)

// SQLExternSpec describes a database relation exposed as a foreign
// predicate: one argument per column, in column order.
type SQLExternSpec struct {
	Table   string
	Columns []string
}

func sqlQueryForArgs(spec SQLExternSpec, args []Term) (string, []interface{}) {
	query := fmt.Sprintf(`SELECT %s FROM %s`, strings.Join(spec.Columns, ", "), spec.Table)

	params := []interface{}{}
	for i, a := range args {
		if !isGround(a) {
			continue
		}
		if len(params) == 0 {
			query = query + " WHERE "
		} else {
			query = query + " AND "
		}
		query = query + fmt.Sprintf("%s = $%d", spec.Columns[i], len(params)+1)
		params = append(params, sqlValue(a))
	}
	return query + ";", params
}

func sqlValue(t Term) interface{} {
	switch t := t.(type) {
	case Float:
		if float64(t) == float64(int64(t)) {
			return int64(t)
		}
		return float64(t)
	case *Compound:
		return t.Functor
	}
	return nil
}

func termForColumn(v interface{}) Term {
	switch v := v.(type) {
	case int64:
		return Float(v)
	case float64:
		return Float(v)
	case string:
		return Atom(v)
	case []byte:
		return Atom(string(v))
	case bool:
		if v {
			return Atom("true")
		}
		return Atom("false")
	case nil:
		return nil
	}
	return Atom(fmt.Sprint(v))
}

// SQLExtern builds a foreign predicate over a database relation. Ground call
// arguments become equality constraints; unbound ones come back from the
// matching rows.
func SQLExtern(spec SQLExternSpec, db *sql.DB) (ExternFunc, error) {
	if len(spec.Columns) == 0 {
		return nil, fmt.Errorf("relation %v has no columns", spec.Table)
	}
	runner := func(args []Term) ([][]Term, error) {
		if len(args) != len(spec.Columns) {
			return nil, fmt.Errorf("relation %v expects %d arguments, got %d",
				spec.Table, len(spec.Columns), len(args))
		}
		q, params := sqlQueryForArgs(spec, args)
		rows, err := db.Query(q, params...)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var results [][]Term
		dests := make([]interface{}, len(spec.Columns))
		for rows.Next() {
			for i := range dests {
				dests[i] = new(interface{})
			}
			if err := rows.Scan(dests...); err != nil {
				return nil, err
			}
			tuple := make([]Term, len(dests))
			for i, d := range dests {
				tuple[i] = termForColumn(*d.(*interface{}))
			}
			results = append(results, tuple)
		}
		if rows.Err() != nil {
			return nil, rows.Err()
		}
		return results, nil
	}
	return runner, nil
}

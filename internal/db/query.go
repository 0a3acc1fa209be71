package db

import (
	"strings"
)

// Query helps build SQL queries using bind parameters.
// Use Unsafe to write literal parts of a query and Param to add bind parameters.
// The final query and parameters can be retrieved using the Get method.
//
// The zero value is ready to use.
type Query struct {
	b      strings.Builder
	params []any
}

// Unsafe writes a non-parameterized part of a query.
func (q *Query) Unsafe(s string) {
	q.b.WriteString(s)
}

// Param writes a parameterized part of a query.
func (q *Query) Param(v any) {
	q.b.WriteString("?")
	q.params = append(q.params, v)
}

// Params writes multiple parameterized parts of a query seperated by commas.
func (q *Query) Params(v ...any) {
	for i, p := range v {
		if i > 0 {
			q.b.WriteString(", ")
		}
		q.b.WriteString("?")
		q.params = append(q.params, p)
	}
}

// Page writes a LIMIT and OFFSET clause. A limit of 0 writes nothing.
func (q *Query) Page(limit, offset int) {
	if limit <= 0 {
		return
	}

	q.Unsafe(" LIMIT ")
	q.Param(limit)
	q.Unsafe(" OFFSET ")
	q.Param(max(offset, 0))
}

// Get returns the constructed query and parameter values.
func (q *Query) Get() (string, []any) {
	return q.b.String(), q.params
}

package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Report is a loggable snapshot of an error chain. When a Postgres driver
// error sits anywhere in the chain its diagnostics are lifted out, since
// those never survive the public error mapping.
type Report struct {
	Message string   `json:"message"`
	Code    Code     `json:"code,omitempty"`
	Chain   []string `json:"chain,omitempty"`

	SQLState   string `json:"sql_state,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Driver     string `json:"driver_message,omitempty"`
}

// Inspect walks err and builds its Report.
func Inspect(err error) Report {
	if err == nil {
		return Report{}
	}

	rep := Report{Message: err.Error()}
	if typed := As(err); typed != nil {
		rep.Code = typed.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		rep.Chain = append(rep.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		rep.SQLState = pgxErr.Code
		rep.Constraint = pgxErr.ConstraintName
		rep.Table = pgxErr.TableName
		rep.Column = pgxErr.ColumnName
		rep.Detail = pgxErr.Detail
		rep.Driver = pgxErr.Message
		return rep
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		rep.SQLState = string(pqErr.Code)
		rep.Constraint = pqErr.Constraint
		rep.Table = pqErr.Table
		rep.Column = pqErr.Column
		rep.Detail = pqErr.Detail
		rep.Driver = pqErr.Message
	}

	return rep
}

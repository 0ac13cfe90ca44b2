package storage

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// stubRows drives scanTokens without a live connection. It yields rowCount
// empty rows and then reports iterErr from Err().
type stubRows struct {
	rowCount int
	iterErr  error
	pos      int
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return r.iterErr }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Next() bool {
	if r.pos >= r.rowCount {
		return false
	}
	r.pos++
	return true
}
func (r *stubRows) Scan(dest ...any) error    { return nil }
func (r *stubRows) Values() ([]any, error)    { return nil, nil }
func (r *stubRows) RawValues() [][]byte       { return nil }
func (r *stubRows) Conn() *pgx.Conn           { return nil }

func TestScanTokens_IterationFailureIsNotTruncation(t *testing.T) {
	// A connection dropped mid-iteration must surface as an error, never as
	// a silently shorter token list
	rows := &stubRows{rowCount: 2, iterErr: fmt.Errorf("connection reset")}

	if _, err := scanTokens(rows); err == nil {
		t.Fatal("expected error when row iteration fails")
	}
}

func TestScanTokens_CleanIteration(t *testing.T) {
	tokens, err := scanTokens(&stubRows{rowCount: 3})
	if err != nil {
		t.Fatalf("scanTokens() error = %v", err)
	}
	if len(tokens) != 3 {
		t.Errorf("got %d tokens, want 3", len(tokens))
	}
}

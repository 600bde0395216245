package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hangar-sh/hangar/internal/repository"
)

func TestMapWriteError(t *testing.T) {
	tests := []struct {
		name string
		code string
		want error
	}{
		{name: "unique violation", code: "23505", want: repository.ErrConflict},
		{name: "foreign key violation", code: "23503", want: repository.ErrNotFound},
		{name: "check violation", code: "23514", want: repository.ErrInvalidArgument},
		{name: "invalid text representation", code: "22P02", want: repository.ErrInvalidArgument},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := fmt.Errorf("exec insert: %w", &pgconn.PgError{Code: tc.code})
			if got := mapWriteError(err); !errors.Is(got, tc.want) {
				t.Fatalf("mapWriteError(%s) = %v, want %v", tc.code, got, tc.want)
			}
		})
	}
}

func TestMapWriteErrorPassesThroughUnknownErrors(t *testing.T) {
	var unknown error = &pgconn.PgError{Code: "42P01"}
	if got := mapWriteError(unknown); got != unknown {
		t.Fatalf("mapWriteError = %v, want the original error", got)
	}

	plain := errors.New("connection reset")
	if got := mapWriteError(plain); got != plain {
		t.Fatalf("mapWriteError = %v, want the original error", got)
	}
}

package reaction

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"pgx unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"pq unique violation", &pq.Error{Code: "23505"}, true},
		{"gorm translated sentinel", gorm.ErrDuplicatedKey, true},
		{"wrapped pgx violation", fmt.Errorf("create reaction: %w", &pgconn.PgError{Code: "23505"}), true},
		{"pgx check violation", &pgconn.PgError{Code: "23514"}, false},
		{"record not found", gorm.ErrRecordNotFound, false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isUniqueViolation(tc.err))
		})
	}
}

package mysql

import (
	"errors"
	"fmt"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

func TestIsDuplicateKey(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "mysql duplicate entry",
			err:  &mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry '0xabc' for key 'sessions.idx_user'"},
			want: true,
		},
		{
			name: "wrapped mysql duplicate entry",
			err:  fmt.Errorf("create session: %w", &mysqldriver.MySQLError{Number: 1062}),
			want: true,
		},
		{
			name: "gorm translated duplicate",
			err:  gorm.ErrDuplicatedKey,
			want: true,
		},
		{
			name: "other mysql error",
			err:  &mysqldriver.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"},
			want: false,
		},
		{
			name: "generic error",
			err:  errors.New("connection refused"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isDuplicateKey(tt.err); got != tt.want {
				t.Errorf("isDuplicateKey(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

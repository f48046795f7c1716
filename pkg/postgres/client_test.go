package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"explicit", Config{DSN: "postgres://x@y/z"}, "postgres://x@y/z"},
		{"defaults", Config{Database: "desk"}, "postgres://localhost:5432/desk?sslmode=disable"},
		{"credentials", Config{Host: "db", Port: 6543, User: "u", Password: "p", Database: "d", SSLMode: "require"},
			"postgres://u:p@db:6543/d?sslmode=require"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.dsn())
		})
	}
}

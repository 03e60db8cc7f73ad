package db

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm duplicated", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), true},
		{"pg unique", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"pg other", &pgconn.PgError{Code: "23503"}, false},
		{"other", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsUniqueViolation(tc.err); got != tc.want {
			t.Fatalf("%s: IsUniqueViolation = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNewInMemory_TranslatesUniqueViolation(t *testing.T) {
	gdb, err := NewInMemory()
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if IsPostgres(gdb) {
		t.Fatalf("expected sqlite dialect")
	}

	if err := gdb.Exec(`CREATE TABLE things (id TEXT PRIMARY KEY)`).Error; err != nil {
		t.Fatalf("create table: %v", err)
	}
	if err := gdb.Exec(`INSERT INTO things (id) VALUES ('a')`).Error; err != nil {
		t.Fatalf("first insert: %v", err)
	}

	type thing struct{ ID string }
	err = gdb.Table("things").Create(&thing{ID: "a"}).Error
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestGormLogger_SkipsRecordNotFound(t *testing.T) {
	var buf bytes.Buffer
	gdb, err := gorm.Open(sqlite.Open(":memory:"), gormConfig(&buf))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.Exec(`CREATE TABLE things (id TEXT PRIMARY KEY)`).Error; err != nil {
		t.Fatalf("create table: %v", err)
	}

	var row struct{ ID string }
	err = gdb.Table("things").Where("id = ?", "missing").First(&row).Error
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("want ErrRecordNotFound, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("record not found must not be logged, got %q", buf.String())
	}

	// Настоящие ошибки SQL по-прежнему попадают в лог.
	if err := gdb.Exec(`SELECT * FROM nope`).Error; err == nil {
		t.Fatalf("expected error for missing table")
	}
	if !strings.Contains(buf.String(), "nope") {
		t.Fatalf("sql error must be logged, got %q", buf.String())
	}
}

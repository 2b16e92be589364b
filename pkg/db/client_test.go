package db

import (
	"context"
	"testing"

	"github.com/MwailaCoding/storefront/pkg/config"
	"gorm.io/driver/sqlite"
)

func TestNewRequiresDSN(t *testing.T) {
	if _, err := New(context.Background(), config.DBConfig{Driver: "sqlite"}, nil); err == nil {
		t.Fatal("expected error without DSN")
	}
}

func TestNewOpensSQLite(t *testing.T) {
	cfg := config.DBConfig{
		Driver:       config.DBDriverSQLite,
		DSN:          "file:db_client_test?mode=memory&cache=shared",
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	}
	client, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = client.Close() }()

	if client.Dialect() != "sqlite3" {
		t.Fatalf("expected sqlite3 dialect, got %q", client.Dialect())
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	if got := sqlDB.Stats().MaxOpenConnections; got != 2 {
		t.Fatalf("expected pool settings applied, got max open %d", got)
	}
}

func TestNewFromConn(t *testing.T) {
	conn, err := Open(sqlite.Open("file:db_from_conn?mode=memory&cache=shared"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	client := NewFromConn(conn, "sqlite3")
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

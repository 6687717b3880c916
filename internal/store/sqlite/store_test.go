package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/invitarr/invitarr-server/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func insertTestServer(t *testing.T, s *Store, id string, vendor domain.VendorType) *domain.MediaServer {
	t.Helper()
	srv := &domain.MediaServer{
		Record:     domain.Record{ID: id, CreatedAt: testNow, UpdatedAt: testNow},
		Name:       id,
		Type:       vendor,
		URL:        "http://" + id + ".local",
		Credential: "secret-" + id,
		Enabled:    true,
	}
	if err := s.CreateMediaServer(context.Background(), srv); err != nil {
		t.Fatalf("CreateMediaServer: %v", err)
	}
	return srv
}

func insertTestInvitation(t *testing.T, s *Store, code string, maxUses *int, serverIDs ...string) *domain.Invitation {
	t.Helper()
	inv := &domain.Invitation{
		Record:    domain.Record{ID: "inv-" + code, CreatedAt: testNow, UpdatedAt: testNow},
		Code:      code,
		MaxUses:   maxUses,
		Enabled:   true,
		ServerIDs: serverIDs,
	}
	if err := s.CreateInvitation(context.Background(), inv); err != nil {
		t.Fatalf("CreateInvitation: %v", err)
	}
	return inv
}

func TestOpen(t *testing.T) {
	s := newTestStore(t)

	// Pragmas apply to every pooled connection, so check several.
	for range 3 {
		conn, err := s.db.Conn(context.Background())
		if err != nil {
			t.Fatalf("conn: %v", err)
		}
		var journalMode string
		if err := conn.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&journalMode); err != nil {
			t.Fatalf("query journal_mode: %v", err)
		}
		if journalMode != "wal" {
			t.Errorf("expected wal, got %s", journalMode)
		}
		var fk int
		if err := conn.QueryRowContext(context.Background(), "PRAGMA foreign_keys").Scan(&fk); err != nil {
			t.Fatalf("query foreign_keys: %v", err)
		}
		if fk != 1 {
			t.Errorf("expected foreign_keys=1, got %d", fk)
		}
		defer conn.Close()
	}

	tables := []string{"media_servers", "libraries", "wizards", "wizard_steps", "invitations", "identities", "users"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	s.Close()
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected ping on a closed store to fail")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	s1, err := Open(path, nil)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	s1.Close()

	s2, err := Open(path, nil)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	s2.Close()
}

func TestFormatTime_OrdersAsText(t *testing.T) {
	a := formatTime(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	b := formatTime(time.Date(2025, 1, 1, 0, 0, 0, 500_000_000, time.UTC))
	if !(a < b) {
		t.Errorf("expected %q < %q", a, b)
	}

	got, err := parseTime(b)
	if err != nil {
		t.Fatalf("parseTime: %v", err)
	}
	if !got.Equal(time.Date(2025, 1, 1, 0, 0, 0, 500_000_000, time.UTC)) {
		t.Errorf("round trip: got %v", got)
	}
}

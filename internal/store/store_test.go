package store

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"), 0)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTables_PrefixIsLiteral(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"stripe_transactions", "stripe_config", "stripeX", "stripe", "bank_wire_log"} {
		if _, err := s.DB().ExecContext(ctx, `CREATE TABLE "`+name+`" (id INTEGER)`); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	got, err := s.Tables(ctx, "stripe_")
	if err != nil {
		t.Fatalf("Tables: %v", err)
	}
	want := []string{"stripe_config", "stripe_transactions"}
	if !slices.Equal(got, want) {
		t.Errorf("Tables = %v, want %v", got, want)
	}
}

func TestDropTable(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.DB().ExecContext(ctx, `CREATE TABLE "mod_data" (id INTEGER)`); err != nil {
		t.Fatal(err)
	}
	ok, err := s.TableExists(ctx, "mod_data")
	if err != nil || !ok {
		t.Fatalf("TableExists = %v, %v; want true", ok, err)
	}

	if err := s.DropTable(ctx, "mod_data"); err != nil {
		t.Fatalf("DropTable: %v", err)
	}
	ok, _ = s.TableExists(ctx, "mod_data")
	if ok {
		t.Error("table still exists after DropTable")
	}

	// Dropping a missing table is not an error.
	if err := s.DropTable(ctx, "mod_data"); err != nil {
		t.Errorf("DropTable on missing table: %v", err)
	}
}

func TestDropTable_UnsafeName(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	err := s.DropTable(context.Background(), `x"; DROP TABLE y; --`)
	if !errors.Is(err, ErrUnsafeIdentifier) {
		t.Errorf("err = %v, want ErrUnsafeIdentifier", err)
	}
}

func TestQuote(t *testing.T) {
	t.Parallel()

	got, err := quote(MySQL, "a_b")
	if err != nil || got != "`a_b`" {
		t.Errorf("quote(mysql) = %q, %v", got, err)
	}
	got, err = quote(SQLite, "a_b")
	if err != nil || got != `"a_b"` {
		t.Errorf("quote(sqlite) = %q, %v", got, err)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), Config{Driver: "oracle"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

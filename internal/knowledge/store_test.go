package knowledge

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestStore(t *testing.T, topK int) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "kb.db"), topK, testLogger())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_SearchRanksByOverlap(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 3)

	seed := []struct{ topic, body string }{
		{"solar", "Energia solar pode reduzir a conta de luz em até 95%."},
		{"instalacao", "A instalação de painéis leva em média dois dias."},
		{"financiamento", "Oferecemos financiamento em até 72 meses."},
	}
	for _, s := range seed {
		if err := store.Add(ctx, s.topic, s.body); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	got, err := store.Search(ctx, "quero informação sobre energia solar")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected at least one snippet")
	}
	if got[0] != seed[0].body {
		t.Errorf("top snippet = %q, want the solar one", got[0])
	}
}

func TestSQLiteStore_EmptyQueryShortCircuits(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 3)
	if err := store.Add(ctx, "solar", "algo"); err != nil {
		t.Fatal(err)
	}

	for _, q := range []string{"", "   ", "\t\n"} {
		got, err := store.Search(ctx, q)
		if err != nil {
			t.Fatalf("Search(%q): %v", q, err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("Search(%q) = %#v, want empty non-nil", q, got)
		}
	}
}

func TestSQLiteStore_TopKLimit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 2)

	for i := 0; i < 5; i++ {
		if err := store.Add(ctx, "solar", "painel solar fato número x"); err != nil {
			t.Fatal(err)
		}
	}
	got, err := store.Search(ctx, "painel solar")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want topK=2", len(got))
	}
}

func TestSQLiteStore_NoMatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 3)
	if err := store.Add(ctx, "solar", "painel"); err != nil {
		t.Fatal(err)
	}

	got, err := store.Search(ctx, "relatório trimestral contabilidade")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want none", got)
	}
}

func TestStatic_Search(t *testing.T) {
	s := NewStatic([]StaticEntry{
		{Match: "solar", Text: "Snippet sobre energia solar."},
		{Match: "financiamento", Text: "Snippet sobre financiamento."},
	})

	got, err := s.Search(context.Background(), "Informação SOLAR por favor")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "Snippet sobre energia solar." {
		t.Errorf("got %v", got)
	}

	empty, err := s.Search(context.Background(), "  ")
	if err != nil {
		t.Fatal(err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("empty query = %#v, want empty non-nil", empty)
	}
}

package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	run := &Run{
		Name:    "crank",
		Model:   json.RawMessage(`{"points":[]}`),
		Options: json.RawMessage(`{"end":90}`),
		Result:  json.RawMessage(`{"frames":[]}`),
		Success: true,
		Frames:  10,
	}
	id, err := s.Save(ctx, run)
	if err != nil {
		t.Fatal(err)
	}
	if !validID(id) {
		t.Errorf("Save id = %q, want a uuid", id)
	}
	if run.CreatedAt.IsZero() {
		t.Error("Save did not stamp CreatedAt")
	}

	got, err := s.Load(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "crank" || got.Frames != 10 || string(got.Options) != `{"end":90}` {
		t.Errorf("Load = %+v", got)
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestFileStoreListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s, _ := NewFileStore(t.TempDir())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"old", "new", "mid"} {
		offset := map[string]time.Duration{"old": 0, "mid": time.Hour, "new": 2 * time.Hour}[name]
		if _, err := s.Save(ctx, &Run{Name: name, CreatedAt: base.Add(offset), Frames: i}); err != nil {
			t.Fatal(err)
		}
	}
	list, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, r := range list {
		names = append(names, r.Name)
	}
	if len(names) != 3 || names[0] != "new" || names[1] != "mid" || names[2] != "old" {
		t.Errorf("List order = %v, want [new mid old]", names)
	}
}

func TestFileStoreRejectsPathIDs(t *testing.T) {
	ctx := context.Background()
	s, _ := NewFileStore(t.TempDir())
	if _, err := s.Load(ctx, "../etc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(../etc) = %v, want ErrNotFound", err)
	}
	if _, err := s.Save(ctx, &Run{ID: "../x"}); err == nil {
		t.Error("Save with a path id should fail")
	}
}

func TestRunKind(t *testing.T) {
	tests := []struct {
		kind, want string
	}{
		{"", KindSweep},
		{KindSweep, KindSweep},
		{KindOptimize, KindOptimize},
	}
	for _, tt := range tests {
		r := &Run{Kind: tt.kind}
		if got := r.Summary().Kind; got != tt.want {
			t.Errorf("Summary().Kind for %q = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

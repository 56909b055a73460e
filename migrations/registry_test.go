package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

func TestFilesystems_ExposesBothDialects(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected postgres and sqlite filesystems, got %d", len(filesystems))
	}

	byDialect := map[string]FilesystemSpec{}
	for _, spec := range filesystems {
		byDialect[spec.Dialect] = spec
	}
	for _, dialect := range []string{DialectPostgres, DialectSQLite} {
		spec, ok := byDialect[dialect]
		if !ok {
			t.Fatalf("missing %s filesystem", dialect)
		}
		matches, err := fs.Glob(spec.FS, "*.up.sql")
		if err != nil {
			t.Fatalf("glob %s: %v", dialect, err)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s up migrations, got none", dialect)
		}
		downs, err := fs.Glob(spec.FS, "*.down.sql")
		if err != nil {
			t.Fatalf("glob %s downs: %v", dialect, err)
		}
		if len(downs) != len(matches) {
			t.Fatalf("expected matching down migration per up migration for %s, got %d vs %d",
				dialect, len(downs), len(matches))
		}
	}

	// The postgres root keeps sqlite files out of its glob results.
	postgres := byDialect[DialectPostgres]
	matches, _ := fs.Glob(postgres.FS, "*.up.sql")
	for _, match := range matches {
		if strings.Contains(match, "sqlite") {
			t.Fatalf("sqlite file leaked into postgres set: %s", match)
		}
	}
}

func TestRegister_InvokesCallbackPerValidationTarget(t *testing.T) {
	seen := map[string]int{}
	reg, err := Register(context.Background(), func(_ context.Context, dialect, sourceLabel string, fsys fs.FS) error {
		if sourceLabel != "go-tasksync" {
			t.Fatalf("unexpected source label %q", sourceLabel)
		}
		if fsys == nil {
			t.Fatalf("nil filesystem for %s", dialect)
		}
		seen[dialect]++
		return nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if seen[DialectPostgres] != 1 || seen[DialectSQLite] != 1 {
		t.Fatalf("expected each dialect registered once, got %v", seen)
	}
	if len(reg.Filesystems) != 2 {
		t.Fatalf("expected both filesystems in registration, got %d", len(reg.Filesystems))
	}
}

func TestRegister_HonorsValidationTargets(t *testing.T) {
	seen := map[string]int{}
	_, err := Register(context.Background(), func(_ context.Context, dialect, _ string, _ fs.FS) error {
		seen[dialect]++
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if seen[DialectSQLite] != 1 || seen[DialectPostgres] != 0 {
		t.Fatalf("expected sqlite only, got %v", seen)
	}
}

func TestRegister_PropagatesCallbackError(t *testing.T) {
	wantErr := fmt.Errorf("register refused")
	_, err := Register(context.Background(), func(context.Context, string, string, fs.FS) error {
		return wantErr
	})
	if err == nil || !strings.Contains(err.Error(), "register refused") {
		t.Fatalf("expected callback error surfaced, got %v", err)
	}
}

func TestRegister_RequiresCallback(t *testing.T) {
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected missing register function error")
	}
}

func TestRegister_CustomSourceLabel(t *testing.T) {
	var got string
	_, err := Register(context.Background(), func(_ context.Context, _, sourceLabel string, _ fs.FS) error {
		got = sourceLabel
		return nil
	}, WithDialectSourceLabel("custom-label"), WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if got != "custom-label" {
		t.Fatalf("expected custom label, got %q", got)
	}
}

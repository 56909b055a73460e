// Package migrations exposes the embedded schema migrations so embedding
// applications can register them with a go-persistence-bun client. Postgres
// files live at the root of the embedded tree; sqlite variants live in a
// sqlite/ subdirectory and are surfaced as their own filesystem.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	tasksync "github.com/goliatone/go-tasksync"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const defaultSourceLabel = "go-tasksync"

// embeddedRoot is where the embed directive anchors the SQL tree.
const embeddedRoot = "data/sql/migrations"

// FilesystemSpec pairs one dialect with the filesystem holding its
// *.up.sql / *.down.sql pairs.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// Registration reports what Register handed to the callback.
type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

// RegisterFunc receives one dialect filesystem per validation target.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

// WithDialectSourceLabel overrides the source label reported to the
// migration runner.
func WithDialectSourceLabel(label string) Option {
	return func(r *Registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.SourceLabel = trimmed
		}
	}
}

// WithValidationTargets restricts registration to the named dialects.
// Useful for sqlite-only test harnesses.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		cleaned := normalizeDialects(targets)
		if len(cleaned) > 0 {
			r.ValidationTargets = cleaned
		}
	}
}

// Filesystems resolves the per-dialect migration filesystems from the
// embedded tree, or from an explicit override when one is supplied.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := tasksync.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}

	base, err := fs.Sub(root, embeddedRoot)
	if err != nil {
		return nil, fmt.Errorf("migrations: %s not found: %w", embeddedRoot, err)
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	filesystems := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: embeddedRoot, FS: base},
		{Dialect: DialectSQLite, Path: embeddedRoot + "/sqlite", FS: sqliteFS},
	}
	for _, entry := range filesystems {
		if err := ensureUpMigrations(entry); err != nil {
			return nil, err
		}
	}
	return filesystems, nil
}

// Register resolves the embedded filesystems and invokes registerFn once per
// dialect named in the validation targets (both dialects by default).
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       defaultSourceLabel,
		ValidationTargets: []string{DialectPostgres, DialectSQLite},
	}

	filesystems, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Filesystems = filesystems

	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	if strings.TrimSpace(reg.SourceLabel) == "" {
		return reg, fmt.Errorf("migrations: source label is required")
	}

	targets := normalizeDialects(reg.ValidationTargets)
	if len(targets) == 0 {
		return reg, fmt.Errorf("migrations: validation targets are required")
	}

	for _, entry := range reg.Filesystems {
		if !slices.Contains(targets, entry.Dialect) {
			continue
		}
		if err := registerFn(ctx, entry.Dialect, reg.SourceLabel, entry.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", entry.Dialect, entry.Path, err)
		}
	}
	return reg, nil
}

func ensureUpMigrations(entry FilesystemSpec) error {
	matches, err := fs.Glob(entry.FS, "*.up.sql")
	if err != nil {
		return fmt.Errorf("migrations: glob %s %s: %w", entry.Dialect, entry.Path, err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", entry.Dialect, entry.Path)
	}
	return nil
}

func normalizeDialects(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		dialect := strings.TrimSpace(strings.ToLower(value))
		if dialect == "" {
			continue
		}
		if _, dup := seen[dialect]; dup {
			continue
		}
		seen[dialect] = struct{}{}
		out = append(out, dialect)
	}
	return out
}

package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed sql/*.sql
var files embed.FS

// GetInitialSchema returns the initial database schema
func GetInitialSchema() (string, error) {
	content, err := files.ReadFile("sql/001_initial_schema.sql")
	if err != nil {
		return "", fmt.Errorf("could not read initial schema: %w", err)
	}
	return string(content), nil
}

// All returns every migration script in filename order
func All() ([]string, error) {
	entries, err := fs.Glob(files, "sql/*.sql")
	if err != nil {
		return nil, fmt.Errorf("could not list migrations: %w", err)
	}
	sort.Strings(entries)

	scripts := make([]string, 0, len(entries))
	for _, name := range entries {
		content, err := files.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("could not read migration %s: %w", name, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			continue
		}
		scripts = append(scripts, string(content))
	}
	return scripts, nil
}

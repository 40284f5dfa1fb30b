// Package scaffold writes a starter kiln.yml and sample historical data.
package scaffold

import (
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dyluth/kiln/internal/config"
	"github.com/dyluth/kiln/internal/history"
	"github.com/dyluth/kiln/internal/printer"
)

//go:embed templates/*
var templatesFS embed.FS

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Files lists what Initialize creates, relative to the target directory.
var Files = []string{config.DefaultPath, history.DefaultPath}

// CheckExisting returns an error naming any scaffold file already present in dir.
func CheckExisting(dir string) error {
	var existing []string
	for _, name := range Files {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			existing = append(existing, name)
		}
	}

	switch len(existing) {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("project already initialized: found %s (use 'kiln init --force' to overwrite)", existing[0])
	default:
		return fmt.Errorf("project already initialized: found %s and %s (use 'kiln init --force' to overwrite)", existing[0], existing[1])
	}
}

// Initialize writes the scaffold files into dir, which must exist. Existing
// files are only replaced when force is set. The written files are loaded
// back to make sure a run would accept them.
func Initialize(dir string, force bool) ([]string, error) {
	if !force {
		if err := CheckExisting(dir); err != nil {
			return nil, err
		}
	}

	files, err := templateFiles(dir)
	if err != nil {
		return nil, err
	}

	created := make([]string, 0, len(files))
	for _, f := range files {
		if err := os.WriteFile(f.Path, f.Content, f.Permissions); err != nil {
			return created, fmt.Errorf("failed to write %s: %w", f.Path, err)
		}
		created = append(created, f.Path)
	}

	if err := validate(dir); err != nil {
		return created, err
	}

	return created, nil
}

func templateFiles(dir string) ([]FileInfo, error) {
	files := make([]FileInfo, 0, len(Files))
	for _, name := range Files {
		content, err := templatesFS.ReadFile("templates/" + name + ".tmpl")
		if err != nil {
			return nil, fmt.Errorf("failed to read %s template: %w", name, err)
		}
		files = append(files, FileInfo{
			Path:        filepath.Join(dir, name),
			Content:     content,
			Permissions: 0644,
		})
	}
	return files, nil
}

func validate(dir string) error {
	if _, err := config.Load(filepath.Join(dir, config.DefaultPath)); err != nil {
		return fmt.Errorf("created %s is invalid: %w", config.DefaultPath, err)
	}
	if _, err := history.Load(filepath.Join(dir, history.DefaultPath)); err != nil {
		return fmt.Errorf("created %s is invalid: %w", history.DefaultPath, err)
	}
	return nil
}

// PrintSuccess lists the created files and the next steps.
func PrintSuccess(w io.Writer, created []string) {
	fmt.Fprintln(w)
	printer.Success(w, "Initialized kiln project\n")
	fmt.Fprintln(w, "\nCreated:")
	for _, path := range created {
		fmt.Fprintf(w, "  ✓ %s\n", path)
	}
	fmt.Fprintln(w, "\nNext steps:")
	fmt.Fprintln(w, "  1. Replace historical_data.json with your line's records")
	fmt.Fprintln(w, "  2. Set current readings in the production section of kiln.yml")
	fmt.Fprintln(w, "  3. Export OPENAI_API_KEY and run 'kiln'")
}

// Package importer reads provider feed files into transactions and the
// account's current balance.
package importer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/banksync/internal/model"
)

// Feed is the content of one feed file.
type Feed struct {
	Transactions []model.Transaction
	// Balance is the account's current balance as reported by the feed.
	// Only meaningful when HasBalance is set.
	Balance    decimal.Decimal
	HasBalance bool
}

// Parser converts a feed file into a Feed.
type Parser interface {
	Parse(r io.Reader) (Feed, error)
	Format() string
}

// Registry holds named parsers.
type Registry struct {
	parsers map[string]Parser
}

// FileInfo describes a feed file in the import directory.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser. Panics on duplicate format.
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(format)]
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&ChaseParser{})
	r.Register(&JSONParser{})
	return r
}

// ParseFile opens path and parses it with the parser registered for format.
func (r *Registry) ParseFile(format, path string) (Feed, error) {
	p := r.Get(format)
	if p == nil {
		return Feed{}, fmt.Errorf("unknown feed format %q", format)
	}
	f, err := os.Open(path)
	if err != nil {
		return Feed{}, fmt.Errorf("opening feed: %w", err)
	}
	defer f.Close()

	feed, err := p.Parse(f)
	if err != nil {
		return Feed{}, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return feed, nil
}

// importDir is the subdirectory for feed files.
const importDir = "import"

// processedDir is the subdirectory for ingested feed files.
const processedDir = "import/processed"

var feedExtensions = map[string]bool{".csv": true, ".json": true}

// Scan returns feed files (.csv, .json) in <repoRoot>/import/, sorted by name.
func Scan(repoRoot string) ([]FileInfo, error) {
	dir := filepath.Join(repoRoot, importDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading import dir: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !feedExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	return files, nil
}

// MarkProcessed moves a file from import/ to import/processed/.
func MarkProcessed(repoRoot, fileName string) error {
	src := filepath.Join(repoRoot, importDir, fileName)
	dstDir := filepath.Join(repoRoot, processedDir)

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	dst := filepath.Join(dstDir, fileName)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return nil
}

// Restore moves a file from import/processed/ back to import/.
func Restore(repoRoot, fileName string) error {
	src := filepath.Join(repoRoot, processedDir, fileName)
	dst := filepath.Join(repoRoot, importDir, fileName)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("restoring %s from processed: %w", fileName, err)
	}
	return nil
}

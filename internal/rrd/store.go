// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rrd owns the Research Requirements Document (rrd.json) of a
// research project: validated load, atomic save, backup, and reset.
// The external agent writes the same file directly between loop
// iterations; this package assumes no concurrent writer.
package rrd

import (
	"bytes"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/zeebo/blake3"

	"github.com/pdiddy/research-ralph/pkg/types"
)

const (
	documentFile = "rrd.json"
	progressFile = "progress.txt"

	backupTimeLayout = "20060102_150405"
)

var (
	// ErrNotFound is returned when rrd.json does not exist.
	ErrNotFound = errors.New("rrd file not found")

	// ErrInvalidFormat is returned when rrd.json is not valid JSON.
	ErrInvalidFormat = errors.New("rrd file is not valid JSON")

	// ErrSchema is returned when required fields are missing or mistyped.
	ErrSchema = errors.New("rrd file does not match schema")

	// ErrNothingLoaded is returned by Save(nil) before any Load.
	ErrNothingLoaded = errors.New("no rrd loaded to save")
)

//go:embed schema.json
var schemaSource string

var documentSchema = jsonschema.MustCompileString("rrd.schema.json", schemaSource)

// now is replaced in tests that need deterministic backup names.
var now = time.Now

// Store reads and writes one project's rrd.json and its companion
// progress.txt log.
type Store struct {
	projectDir   string
	documentPath string
	progressPath string

	cached *types.RRD
}

// NewStore returns a Store for the project rooted at projectDir. It does not
// touch the filesystem.
func NewStore(projectDir string) *Store {
	return &Store{
		projectDir:   projectDir,
		documentPath: filepath.Join(projectDir, documentFile),
		progressPath: filepath.Join(projectDir, progressFile),
	}
}

// ProjectDir returns the project directory.
func (s *Store) ProjectDir() string { return s.projectDir }

// Path returns the path of rrd.json.
func (s *Store) Path() string { return s.documentPath }

// ProgressPath returns the path of progress.txt.
func (s *Store) ProgressPath() string { return s.progressPath }

// Exists reports whether rrd.json is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.documentPath)
	return err == nil
}

// Load reads, validates, and parses rrd.json. The result is cached for
// Save(nil). A failed Load leaves the previous cache untouched.
func (s *Store) Load() (*types.RRD, error) {
	data, err := os.ReadFile(s.documentPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.documentPath)
		}
		return nil, fmt.Errorf("reading %s: %w", s.documentPath, err)
	}

	doc, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", s.documentPath, err)
	}

	s.cached = doc
	return doc, nil
}

// decode parses raw document bytes, checks them against the embedded
// schema, and decodes into the typed model.
func decode(data []byte) (*types.RRD, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	if err := documentSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	var doc types.RRD
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	normalize(&doc)
	return &doc, nil
}

// normalize fills defaults so that a saved document always passes the
// schema on the next Load.
func normalize(doc *types.RRD) {
	if doc.Phase == "" {
		doc.Phase = types.PhaseDiscovery
	}
	if doc.PapersPool == nil {
		doc.PapersPool = []types.Paper{}
	}
	for i := range doc.PapersPool {
		if doc.PapersPool[i].Status == "" {
			doc.PapersPool[i].Status = types.StatusPending
		}
	}
	if doc.Insights == nil {
		doc.Insights = []types.Insight{}
	}
	if doc.OpenQuestions == nil {
		doc.OpenQuestions = []string{}
	}
	if doc.VisitedURLs == nil {
		doc.VisitedURLs = []string{}
	}
	if doc.BlockedSources == nil {
		doc.BlockedSources = []string{}
	}
}

// Save writes doc, or the last loaded document when doc is nil, to rrd.json.
// The JSON is written to a temporary file in the project directory and
// renamed over rrd.json, so readers see either the old or the new document.
// The temporary file never survives a failed Save.
func (s *Store) Save(doc *types.RRD) error {
	if doc != nil {
		s.cached = doc
	}
	if s.cached == nil {
		return ErrNothingLoaded
	}
	normalize(s.cached)

	data, err := json.MarshalIndent(s.cached, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling rrd: %w", err)
	}
	data = append(data, '\n')

	tmpFile, err := os.CreateTemp(filepath.Dir(s.documentPath), ".rrd-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, writeErr := tmpFile.Write(data)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing rrd: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, s.documentPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// CreateBackup copies rrd.json to rrd.backup.<suffix>.json and, when it
// exists, progress.txt to progress.backup.<suffix>.txt. An empty suffix
// is replaced by the current time (YYYYMMDD_HHMMSS). It returns the path of
// the rrd backup.
func (s *Store) CreateBackup(suffix string) (string, error) {
	if suffix == "" {
		suffix = now().Format(backupTimeLayout)
	}

	backupPath := backupName(s.documentPath, suffix)
	if err := copyFile(s.documentPath, backupPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("backing up: %w: %s", ErrNotFound, s.documentPath)
		}
		return "", fmt.Errorf("backing up %s: %w", s.documentPath, err)
	}

	if _, err := os.Stat(s.progressPath); err == nil {
		if err := copyFile(s.progressPath, backupName(s.progressPath, suffix)); err != nil {
			return "", fmt.Errorf("backing up %s: %w", s.progressPath, err)
		}
	}

	return backupPath, nil
}

// backupName turns dir/name.ext into dir/name.backup.<suffix>.ext.
func backupName(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".backup." + suffix + ext
}

// copyFile copies src to dst, keeping the permission bits and
// modification time of src.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// Reset backs up the project, then returns it to DISCOVERY with an empty
// paper pool, no insights, zeroed counters, and a fresh progress.txt.
// It returns the path of the rrd backup.
func (s *Store) Reset() (string, error) {
	backupPath, err := s.CreateBackup("")
	if err != nil {
		return "", err
	}

	doc, err := s.Load()
	if err != nil {
		return backupPath, err
	}

	doc.Phase = types.PhaseDiscovery
	doc.PapersPool = []types.Paper{}
	doc.Insights = []types.Insight{}
	doc.Statistics.TotalDiscovered = 0
	doc.Statistics.TotalAnalyzed = 0
	doc.Statistics.TotalPresented = 0
	doc.Statistics.TotalRejected = 0
	doc.Statistics.TotalInsightsExtracted = 0

	if err := s.Save(doc); err != nil {
		return backupPath, err
	}
	if err := s.writeProgressHeader(); err != nil {
		return backupPath, err
	}
	return backupPath, nil
}

const progressHeader = `# Research-Ralph Progress Log
Reset: %s

## Research Patterns
- (Patterns discovered during research will be added here)

## Cross-Reference Insights
- (Connections between papers will be added here)

---
`

func (s *Store) writeProgressHeader() error {
	content := fmt.Sprintf(progressHeader, now().Format("2006-01-02T15:04:05.000000"))
	if err := os.WriteFile(s.progressPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", s.progressPath, err)
	}
	return nil
}

// EnsureProgressFile creates progress.txt with the standard header when it
// is missing. An existing log is left alone.
func (s *Store) EnsureProgressFile() error {
	if _, err := os.Stat(s.progressPath); err == nil {
		return nil
	}
	return s.writeProgressHeader()
}

// Validate performs a structural check of rrd.json without full parsing and
// returns human-readable problems. An empty slice means the document is
// usable.
func (s *Store) Validate() []string {
	var problems []string

	data, err := os.ReadFile(s.documentPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return append(problems, fmt.Sprintf("RRD file not found: %s", s.documentPath))
		}
		return append(problems, fmt.Sprintf("Cannot read RRD file: %v", err))
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return append(problems, fmt.Sprintf("Invalid JSON: %v", err))
	}

	if _, ok := raw["project"]; !ok {
		problems = append(problems, "Missing required field: project")
	}
	req, ok := raw["requirements"]
	if !ok {
		problems = append(problems, "Missing required field: requirements")
	} else if reqMap, isMap := req.(map[string]any); !isMap {
		problems = append(problems, "Missing required field: requirements.target_papers")
	} else if _, has := reqMap["target_papers"]; !has {
		problems = append(problems, "Missing required field: requirements.target_papers")
	}

	return problems
}

// UpdateTargetPapers changes requirements.target_papers. Unless force is
// set, the change is only allowed while the project is still in DISCOVERY
// with nothing analyzed; otherwise it returns false and changes nothing.
func (s *Store) UpdateTargetPapers(target int, force bool) (bool, error) {
	if target < 1 {
		return false, fmt.Errorf("target papers must be >= 1, got %d", target)
	}

	doc, err := s.Load()
	if err != nil {
		return false, err
	}

	if !force && (doc.Phase != types.PhaseDiscovery || doc.Statistics.TotalAnalyzed > 0) {
		return false, nil
	}

	doc.Requirements.TargetPapers = target
	if err := s.Save(doc); err != nil {
		return false, err
	}
	return true, nil
}

// Summary loads the document and returns a flat view for display.
func (s *Store) Summary() (types.Summary, error) {
	doc, err := s.Load()
	if err != nil {
		return types.Summary{}, err
	}
	return types.Summary{
		Project:       doc.Project,
		Phase:         doc.Phase,
		TargetPapers:  doc.Requirements.TargetPapers,
		PoolSize:      len(doc.PapersPool),
		Analyzed:      doc.Statistics.TotalAnalyzed,
		Presented:     doc.Statistics.TotalPresented,
		Rejected:      doc.Statistics.TotalRejected,
		Pending:       len(doc.PendingPapers()),
		Analyzing:     len(doc.AnalyzingPapers()),
		Insights:      doc.Statistics.TotalInsightsExtracted,
		CompletionPct: doc.CompletionPercentage(),
	}, nil
}

// Fingerprint returns the BLAKE3 digest of the raw rrd.json bytes.
func (s *Store) Fingerprint() (string, error) {
	data, err := os.ReadFile(s.documentPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, s.documentPath)
		}
		return "", fmt.Errorf("reading %s: %w", s.documentPath, err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package project locates research projects on disk. A project is any
// directory containing an rrd.json.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

const documentFile = "rrd.json"

// Phase labels for projects whose document cannot be read.
const (
	PhaseInvalidJSON = "INVALID JSON"
	PhaseNoAccess    = "NO ACCESS"
	PhaseNoDocument  = "NO RRD"
	PhaseUnknown     = "UNKNOWN"
)

// ErrNotFound is returned when a name resolves to no project.
var ErrNotFound = errors.New("research project not found")

// Info is a lenient summary of one project for listings.
type Info struct {
	Name     string    `json:"name" yaml:"name"`
	Path     string    `json:"path" yaml:"path"`
	Phase    string    `json:"phase" yaml:"phase"`
	Target   int       `json:"target" yaml:"target"`
	Analyzed int       `json:"analyzed" yaml:"analyzed"`
	Pending  int       `json:"pending" yaml:"pending"`
	ModTime  time.Time `json:"mod_time" yaml:"mod_time"`
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func isProject(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, documentFile))
	return err == nil
}

// Resolve maps a project argument to a directory. It tries, in order: the
// working directory itself for "." or "", the argument as a path, a project
// directory under cwd, and a directory under researchDir.
func Resolve(name, cwd, researchDir string) (string, error) {
	if (name == "." || name == "") && isProject(cwd) {
		return cwd, nil
	}
	if name == "" {
		return "", fmt.Errorf("%w: no project given and %s has no %s", ErrNotFound, cwd, documentFile)
	}

	candidate := name
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(cwd, name)
	}
	if _, err := os.Stat(candidate); err == nil {
		return filepath.Clean(candidate), nil
	}

	if inCwd := filepath.Join(cwd, name); isProject(inCwd) {
		return inCwd, nil
	}

	if researchDir != "" {
		inResearchDir := filepath.Join(ExpandHome(researchDir), name)
		if _, err := os.Stat(inResearchDir); err == nil {
			return inResearchDir, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// List finds projects in each root: the root itself and its immediate
// subdirectories. Roots that do not exist are skipped. A project name seen
// in an earlier root hides later ones. Results are most recently modified
// first.
func List(roots ...string) ([]Info, error) {
	var infos []Info
	seenNames := map[string]bool{}
	seenPaths := map[string]bool{}

	for _, root := range roots {
		root = ExpandHome(root)
		if st, err := os.Stat(root); err != nil || !st.IsDir() {
			continue
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", root, err)
		}

		matches, err := doublestar.Glob(os.DirFS(abs), "{"+documentFile+",*/"+documentFile+"}")
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", abs, err)
		}
		sort.Strings(matches)

		for _, m := range matches {
			dir := filepath.Join(abs, filepath.Dir(filepath.FromSlash(m)))
			name := filepath.Base(dir)
			if seenPaths[dir] || seenNames[name] {
				continue
			}
			seenPaths[dir] = true
			seenNames[name] = true
			infos = append(infos, Inspect(dir))
		}
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].ModTime.After(infos[j].ModTime)
	})
	return infos, nil
}

type lenientDocument struct {
	Phase        string `json:"phase"`
	Requirements struct {
		TargetPapers int `json:"target_papers"`
	} `json:"requirements"`
	Statistics struct {
		TotalAnalyzed int `json:"total_analyzed"`
	} `json:"statistics"`
	PapersPool []struct {
		Status string `json:"status"`
	} `json:"papers_pool"`
}

// Inspect reads the project in dir without schema validation. Read failures
// are reported in Phase rather than as errors.
func Inspect(dir string) Info {
	info := Info{Name: filepath.Base(dir), Path: dir}
	if st, err := os.Stat(dir); err == nil {
		info.ModTime = st.ModTime()
	}

	data, err := os.ReadFile(filepath.Join(dir, documentFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		info.Phase = PhaseNoDocument
		return info
	case errors.Is(err, fs.ErrPermission):
		info.Phase = PhaseNoAccess
		return info
	case err != nil:
		info.Phase = "ERR: " + err.Error()
		return info
	}

	var doc lenientDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		info.Phase = PhaseInvalidJSON
		return info
	}

	info.Phase = doc.Phase
	if info.Phase == "" {
		info.Phase = PhaseUnknown
	}
	info.Target = doc.Requirements.TargetPapers
	info.Analyzed = doc.Statistics.TotalAnalyzed
	for _, p := range doc.PapersPool {
		if p.Status == "pending" || p.Status == "analyzing" {
			info.Pending++
		}
	}
	return info
}

// Package policy confines the documents and projects clients may name to
// the configured roots.
package policy

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	ErrForbiddenPath   = errors.New("path is outside allowed roots")
	ErrRelativeProject = errors.New("project must be an absolute path")
)

type Engine struct {
	allowedRoots []string
}

// New normalises the roots. With no roots every absolute path is allowed.
func New(allowedRoots []string) (*Engine, error) {
	norm := make([]string, 0, len(allowedRoots))
	for _, root := range allowedRoots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		norm = append(norm, filepath.Clean(abs))
	}
	return &Engine{allowedRoots: norm}, nil
}

func (e *Engine) AllowedRoots() []string {
	cp := make([]string, len(e.allowedRoots))
	copy(cp, e.allowedRoots)
	return cp
}

// Project validates a project root.
func (e *Engine) Project(project string) (string, error) {
	if !filepath.IsAbs(project) {
		return "", ErrRelativeProject
	}
	cleaned := filepath.Clean(project)
	if !e.IsAllowed(cleaned) {
		return "", ErrForbiddenPath
	}
	return cleaned, nil
}

// Document validates project and resolves path against it.
func (e *Engine) Document(project, path string) (string, string, error) {
	project, err := e.Project(project)
	if err != nil {
		return "", "", err
	}
	doc, err := e.ResolvePath(project, path)
	if err != nil {
		return "", "", err
	}
	return project, doc, nil
}

func (e *Engine) ResolvePath(cwd, p string) (string, error) {
	candidate := p
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(cwd, candidate)
	}
	abs, err := filepath.Abs(candidate)
	if err != nil {
		return "", err
	}
	cleaned := filepath.Clean(abs)
	if !e.IsAllowed(cleaned) {
		return "", ErrForbiddenPath
	}
	return cleaned, nil
}

func (e *Engine) IsAllowed(path string) bool {
	if len(e.allowedRoots) == 0 {
		return true
	}
	cleaned := filepath.Clean(path)
	for _, root := range e.allowedRoots {
		if cleaned == root {
			return true
		}
		if strings.HasPrefix(cleaned, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

package tui

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ashita-ai/auditfront/internal/model"
)

// requestFile is the YAML form of a run request. Document is a path to the
// structured report, relative to the request file.
type requestFile struct {
	model.RunRequest `yaml:",inline"`
	Document         string `yaml:"document,omitempty"`
}

// LoadRequest reads a run request from a YAML file. Unknown keys are errors.
func LoadRequest(path string) (model.RunRequest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is an explicit CLI argument
	if err != nil {
		return model.RunRequest{}, fmt.Errorf("read request: %w", err)
	}

	var rf requestFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil {
		return model.RunRequest{}, fmt.Errorf("parse request %s: %w", path, err)
	}

	req := rf.RunRequest
	if rf.Document != "" {
		docPath := rf.Document
		if !filepath.IsAbs(docPath) {
			docPath = filepath.Join(filepath.Dir(path), docPath)
		}
		doc, err := LoadDocument(docPath)
		if err != nil {
			return model.RunRequest{}, err
		}
		req.Document = doc
	}
	return req, nil
}

// LoadDocument reads a structured report from disk.
func LoadDocument(path string) (*model.Document, error) {
	content, err := os.ReadFile(path) //nolint:gosec // path is an explicit CLI argument
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return &model.Document{Filename: filepath.Base(path), Content: content}, nil
}

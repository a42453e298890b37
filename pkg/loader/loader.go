// Package loader turns files on disk into documents for ingestion.
package loader

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kk32340/SampleMLCode/engine/domain"
)

// ErrUnsupportedFormat is returned for file types the loader cannot read.
var ErrUnsupportedFormat = fmt.Errorf("%w: unsupported format", domain.ErrInvalidArgument)

// DefaultExtensions are the file types LoadDir picks up.
var DefaultExtensions = []string{".txt", ".md", ".csv", ".json"}

// Metadata keys set on every loaded document.
const (
	MetaSource   = "source"
	MetaFileType = "file_type"
	MetaFilePath = "file_path"
	MetaSize     = "size"
)

// LoadFile reads path into a Document whose ID is the slash-separated path.
func LoadFile(path string) (domain.Document, error) {
	return loadAs(path, filepath.ToSlash(filepath.Clean(path)))
}

func loadAs(path, id string) (domain.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	var (
		content  string
		fileType string
		extra    domain.Metadata
		err      error
	)
	switch ext {
	case ".txt", ".md":
		fileType = "text"
		var data []byte
		data, err = os.ReadFile(path)
		content = string(data)
	case ".csv":
		fileType = "csv"
		content, extra, err = readCSV(path)
	case ".json":
		fileType = "json"
		content, err = readJSON(path)
	default:
		return domain.Document{}, fmt.Errorf("loader: %s: %w", path, ErrUnsupportedFormat)
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("loader: %s: %w", path, err)
	}

	meta := domain.Metadata{
		MetaSource:   filepath.Base(path),
		MetaFileType: fileType,
		MetaFilePath: path,
		MetaSize:     len([]rune(content)),
	}
	for k, v := range extra {
		meta[k] = v
	}
	return domain.Document{ID: id, Content: content, Metadata: meta}, nil
}

// readCSV renders each row as "Row n: col: value | col: value".
func readCSV(path string) (string, domain.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return "", domain.Metadata{"num_rows": 0}, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("csv header: %w", err)
	}

	var lines []string
	rows := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("csv row %d: %w", rows+1, err)
		}
		rows++
		parts := make([]string, 0, len(rec))
		for i, v := range rec {
			v = strings.TrimSpace(v)
			if v == "" || i >= len(header) {
				continue
			}
			parts = append(parts, header[i]+": "+v)
		}
		if len(parts) > 0 {
			lines = append(lines, "Row "+strconv.Itoa(rows)+": "+strings.Join(parts, " | "))
		}
	}
	return strings.Join(lines, "\n"), domain.Metadata{
		"num_rows": rows,
		"columns":  strings.Join(header, ","),
	}, nil
}

// readJSON flattens scalar fields into "key: value" lines. Object keys are
// visited in sorted order.
func readJSON(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	var lines []string
	flatten(v, "", &lines)
	return strings.Join(lines, "\n"), nil
}

func flatten(v any, key string, lines *[]string) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flatten(t[k], k, lines)
		}
	case []any:
		for _, item := range t {
			flatten(item, key, lines)
		}
	case nil:
	default:
		if key == "" {
			*lines = append(*lines, fmt.Sprint(t))
			return
		}
		*lines = append(*lines, fmt.Sprintf("%s: %v", key, t))
	}
}

// FileError records a file LoadDir could not read.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string { return e.Path + ": " + e.Err.Error() }

// LoadDir walks root and loads every file whose extension is in exts
// (DefaultExtensions when empty), skipping hidden files and directories.
// Document IDs are paths relative to root.
// Unreadable files are reported in the second result and do not stop the walk.
func LoadDir(root string, exts ...string) ([]domain.Document, []FileError, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(e)] = true
	}

	var docs []domain.Document
	var failed []FileError
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !allowed[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		doc, err := loadAs(path, filepath.ToSlash(rel))
		if err != nil {
			failed = append(failed, FileError{Path: path, Err: err})
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("loader: walk %s: %w", root, err)
	}
	return docs, failed, nil
}

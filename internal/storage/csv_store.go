package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
)

// Column names of the questions file.
const (
	ColumnQuestion = "Question"
	ColumnTopic    = "Topic"
	ColumnCategory = "Category"
	ColumnPushed   = "Pushed"
)

var canonicalColumns = []string{ColumnQuestion, ColumnTopic, ColumnCategory, ColumnPushed}

// CSVQuestionStore reads and rewrites the questions file.
// The whole file is replaced on every save.
type CSVQuestionStore struct {
	path string

	mu     sync.Mutex
	header []string // header of the last successful load
}

// NewCSVQuestionStore creates a store backed by the CSV file at path.
func NewCSVQuestionStore(path string) *CSVQuestionStore {
	return &CSVQuestionStore{path: path}
}

// Path returns the location of the questions file.
func (s *CSVQuestionStore) Path() string {
	return s.path
}

// LoadAll reads every question in file order.
// A missing file yields ErrNotFound, malformed content yields ErrParse.
func (s *CSVQuestionStore) LoadAll(ctx context.Context) ([]Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: questions file %s", ErrNotFound, s.path)
		}
		return nil, fmt.Errorf("failed to read questions file: %w", err)
	}

	questions, header, err := parseQuestions(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.header = header
	s.mu.Unlock()

	return questions, nil
}

// SaveAll atomically replaces the questions file with the given questions.
func (s *CSVQuestionStore) SaveAll(ctx context.Context, questions []Question) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := writeQuestions(&buf, s.headerFor(questions), questions); err != nil {
		return fmt.Errorf("failed to encode questions: %w", err)
	}

	perm := os.FileMode(0o644)
	if info, err := os.Stat(s.path); err == nil {
		perm = info.Mode().Perm()
	}

	if err := renameio.WriteFile(s.path, buf.Bytes(), perm); err != nil {
		return fmt.Errorf("failed to write questions file: %w", err)
	}
	return nil
}

// headerFor returns the column order for a save. The loaded header is kept
// as-is, with Pushed appended when the file did not have it yet.
func (s *CSVQuestionStore) headerFor(questions []Question) []string {
	s.mu.Lock()
	loaded := append([]string(nil), s.header...)
	s.mu.Unlock()

	if len(loaded) > 0 {
		for _, name := range loaded {
			if name == ColumnPushed {
				return loaded
			}
		}
		return append(loaded, ColumnPushed)
	}

	header := append([]string(nil), canonicalColumns...)
	seen := make(map[string]bool)
	var extra []string
	for _, q := range questions {
		for name := range q.Extra {
			if !seen[name] && !isKnownColumn(name) {
				seen[name] = true
				extra = append(extra, name)
			}
		}
	}
	sort.Strings(extra)
	return append(header, extra...)
}

func isKnownColumn(name string) bool {
	for _, c := range canonicalColumns {
		if c == name {
			return true
		}
	}
	return false
}

func parseQuestions(r io.Reader) ([]Question, []string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("%w: questions file is empty", ErrParse)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading header: %v", ErrParse, err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if _, dup := index[name]; dup {
			return nil, nil, fmt.Errorf("%w: duplicate column %q", ErrParse, name)
		}
		header[i] = name
		index[name] = i
	}
	if _, ok := index[ColumnQuestion]; !ok {
		return nil, nil, fmt.Errorf("%w: missing %q column", ErrParse, ColumnQuestion)
	}

	var questions []Question
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		row := len(questions) + 1
		if len(record) > len(header) {
			return nil, nil, fmt.Errorf("%w: row %d has %d fields, header has %d", ErrParse, row, len(record), len(header))
		}

		field := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return ""
			}
			return record[i]
		}

		delivered, err := ParseDelivered(field(ColumnPushed))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: row %d: %v", ErrParse, row, err)
		}

		q := Question{
			Question:  field(ColumnQuestion),
			Topic:     field(ColumnTopic),
			Category:  field(ColumnCategory),
			Delivered: delivered,
		}
		for _, name := range header {
			if isKnownColumn(name) {
				continue
			}
			if q.Extra == nil {
				q.Extra = make(map[string]string)
			}
			q.Extra[name] = field(name)
		}
		questions = append(questions, q)
	}

	return questions, header, nil
}

func writeQuestions(w io.Writer, header []string, questions []Question) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for _, q := range questions {
		for i, name := range header {
			switch name {
			case ColumnQuestion:
				row[i] = q.Question
			case ColumnTopic:
				row[i] = q.Topic
			case ColumnCategory:
				row[i] = q.Category
			case ColumnPushed:
				row[i] = FormatDelivered(q.Delivered)
			default:
				row[i] = q.Extra[name]
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ParseDelivered reads a Pushed cell. Empty means not delivered.
func ParseDelivered(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "false", "f", "0", "0.0", "no", "n":
		return false, nil
	case "true", "t", "1", "1.0", "yes", "y":
		return true, nil
	default:
		return false, fmt.Errorf("invalid %s value %q", ColumnPushed, v)
	}
}

// FormatDelivered renders a Pushed cell the way the file has always stored it.
func FormatDelivered(delivered bool) string {
	if delivered {
		return "True"
	}
	return "False"
}

package upload

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core/paper"
)

const MB int64 = 1 << 20

// Endpoint names
const (
	QuestionPaper = "questionPaper"
	AnswerSheet   = "answerSheet"
	AnswerKey     = "answerKey"
	StudentImport = "studentImport"
)

// FileTypeSpreadsheet is the type of csv and xlsx files. Other types are paper document types.
const FileTypeSpreadsheet = "spreadsheet"

var (
	ErrUnknownEndpoint = errors.New("unknown upload endpoint")
	ErrNoFiles         = errors.New("no file uploaded")
	ErrTooManyFiles    = errors.New("too many files")
	ErrTypeNotAllowed  = errors.New("file type not allowed")
	ErrFileTooLarge    = errors.New("file too large")
)

type (
	// Endpoint is the upload policy of a named endpoint: the accepted file types with
	// their max size, and the max number of files per upload.
	Endpoint struct {
		Name      string           `json:"name"`
		PaperKind string           `json:"paper_kind,omitempty"` // empty when uploads are not stored as papers
		MaxFiles  int              `json:"max_files"`
		MaxSizes  map[string]int64 `json:"max_sizes"` // {file type: max size in bytes}
	}

	File struct {
		Name string
		Size int64
	}

	Router struct {
		endpoints map[string]Endpoint
	}
)

// NewRouter returns a Router serving the given endpoints, or the default ones when none is given.
func NewRouter(endpoints ...Endpoint) *Router {
	if len(endpoints) == 0 {
		endpoints = DefaultEndpoints()
	}
	r := &Router{endpoints: make(map[string]Endpoint, len(endpoints))}
	for _, ep := range endpoints {
		r.endpoints[ep.Name] = ep
	}
	return r
}

func DefaultEndpoints() []Endpoint {
	return []Endpoint{
		{
			Name:      QuestionPaper,
			PaperKind: paper.KindQuestionPaper,
			MaxFiles:  1,
			MaxSizes:  map[string]int64{paper.DocPDF: 16 * MB, paper.DocImage: 8 * MB},
		},
		{
			Name:      AnswerSheet,
			PaperKind: paper.KindAnswerSheet,
			MaxFiles:  50,
			MaxSizes:  map[string]int64{paper.DocPDF: 16 * MB, paper.DocImage: 8 * MB},
		},
		{
			Name:      AnswerKey,
			PaperKind: paper.KindAnswerKey,
			MaxFiles:  1,
			MaxSizes:  map[string]int64{paper.DocPDF: 16 * MB, paper.DocDocument: 4 * MB},
		},
		{
			Name:     StudentImport,
			MaxFiles: 1,
			MaxSizes: map[string]int64{FileTypeSpreadsheet: 4 * MB},
		},
	}
}

// FileType classifies a file name for the upload policies.
func FileType(name string) string {
	switch paper.Extension(name) {
	case "csv", "xlsx":
		return FileTypeSpreadsheet
	}
	return paper.DetectDocumentType(name)
}

func (r *Router) Endpoint(name string) (Endpoint, error) {
	ep, ok := r.endpoints[name]
	if !ok {
		return Endpoint{}, errors.Wrap(ErrUnknownEndpoint, name)
	}
	return ep, nil
}

// Endpoints lists the endpoints sorted by name.
func (r *Router) Endpoints() []Endpoint {
	out := make([]Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Check validates files against the policy of the endpoint.
// The returned error's cause is one of the package errors; per-file errors are wrapped with the file name.
func (r *Router) Check(endpoint string, files []File) error {
	ep, err := r.Endpoint(endpoint)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return ErrNoFiles
	}
	if len(files) > ep.MaxFiles {
		return errors.Wrapf(ErrTooManyFiles, "max %d", ep.MaxFiles)
	}
	for _, f := range files {
		typ := FileType(f.Name)
		maxSize, ok := ep.MaxSizes[typ]
		if !ok {
			return errors.Wrapf(ErrTypeNotAllowed, "%s (allowed: %s)", f.Name, ep.allowedTypes())
		}
		if f.Size > maxSize {
			return errors.Wrapf(ErrFileTooLarge, "%s (max %s)", f.Name, formatSize(maxSize))
		}
	}
	return nil
}

func (ep Endpoint) allowedTypes() string {
	types := make([]string, 0, len(ep.MaxSizes))
	for typ := range ep.MaxSizes {
		types = append(types, typ)
	}
	sort.Strings(types)
	return strings.Join(types, ", ")
}

func formatSize(n int64) string {
	if n%MB == 0 {
		return fmt.Sprintf("%dMB", n/MB)
	}
	return fmt.Sprintf("%d bytes", n)
}

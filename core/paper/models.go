package paper

import (
	"path"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"
)

// Paper kinds
const (
	KindQuestionPaper = "question_paper"
	KindAnswerSheet   = "answer_sheet"
	KindAnswerKey     = "answer_key"
)

// Document types
const (
	DocPDF      = "pdf"
	DocImage    = "image"
	DocDocument = "document"
	DocUnknown  = "unknown"
)

var (
	Kinds = []string{KindQuestionPaper, KindAnswerSheet, KindAnswerKey}

	imageExts    = map[string]bool{"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true, "bmp": true, "svg": true, "heic": true}
	documentExts = map[string]bool{"doc": true, "docx": true, "txt": true, "rtf": true, "odt": true}
)

func IsKind(kind string) bool {
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Paper is a stored file attached to a Test: a question paper, an answer key or a student's answer sheet.
type Paper struct {
	ID           string      `json:"id" db:"id"`
	TestID       string      `json:"test_id" db:"test_id"`
	StudentID    null.String `json:"student_id" db:"student_id"`
	Kind         string      `json:"kind" db:"kind"`
	Filename     string      `json:"filename" db:"filename"`
	StorageKey   string      `json:"storage_key" db:"storage_key"`
	ContentType  string      `json:"content_type" db:"content_type"`
	Size         int64       `json:"size" db:"size"`
	DocumentType string      `json:"document_type" db:"document_type"`
	UploadedBy   null.String `json:"uploaded_by" db:"uploaded_by"`
	AssignedAt   null.Time   `json:"assigned_at" db:"assigned_at"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}

func (p Paper) IsAssigned() bool {
	return p.StudentID.Valid
}

// Extension returns the lower-cased extension (without the dot) of a file name or URL.
// The query string and fragment of URLs are ignored.
func Extension(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	ext := path.Ext(strings.ToLower(name))
	return strings.TrimPrefix(ext, ".")
}

// DetectDocumentType classifies a file name or URL by its extension:
// pdf, image, document or unknown.
func DetectDocumentType(url string) string {
	ext := Extension(url)
	switch {
	case ext == "pdf":
		return DocPDF
	case imageExts[ext]:
		return DocImage
	case documentExts[ext]:
		return DocDocument
	}
	return DocUnknown
}

// NewPaper describes an uploaded file to store.
type NewPaper struct {
	TestID      string
	StudentID   string
	Kind        string
	Filename    string
	ContentType string
	Size        int64
	UploadedBy  string
}

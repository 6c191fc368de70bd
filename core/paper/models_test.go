package paper

import "testing"

func TestDetectDocumentType(t *testing.T) {
	tests := []struct {
		url     string
		wantExt string
		want    string
	}{
		{url: "sheet.pdf", wantExt: "pdf", want: DocPDF},
		{url: "SCAN.PDF", wantExt: "pdf", want: DocPDF},
		{url: "https://cdn.test.tz/papers/amani.jpeg?X-Expires=60#page=2", wantExt: "jpeg", want: DocImage},
		{url: "photo.webp", wantExt: "webp", want: DocImage},
		{url: "photo.HEIC", wantExt: "heic", want: DocImage},
		{url: "key.docx", wantExt: "docx", want: DocDocument},
		{url: "notes.txt", wantExt: "txt", want: DocDocument},
		{url: "archive.tar.gz", wantExt: "gz", want: DocUnknown},
		{url: "README", want: DocUnknown},
		{url: "", want: DocUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := Extension(tt.url); got != tt.wantExt {
				t.Errorf("Extension() = %q, want %q", got, tt.wantExt)
			}
			if got := DetectDocumentType(tt.url); got != tt.want {
				t.Errorf("DetectDocumentType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsKind(t *testing.T) {
	for _, kind := range Kinds {
		if !IsKind(kind) {
			t.Errorf("IsKind(%q) = false", kind)
		}
	}
	if IsKind("homework") {
		t.Error(`IsKind("homework") = true`)
	}
}

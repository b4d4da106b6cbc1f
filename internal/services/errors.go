package services

import "fmt"

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type RateLimitError struct{ Message string }

func (e *RateLimitError) Error() string { return e.Message }

// UnsupportedFormatError is returned for attachments whose extension has no
// extractor.
type UnsupportedFormatError struct{ Extension string }

func (e *UnsupportedFormatError) Error() string {
	if e.Extension == "" {
		return "File has no extension; supported formats are .pdf, .docx and .txt"
	}
	return fmt.Sprintf("Unsupported file format %q; supported formats are .pdf, .docx and .txt", e.Extension)
}

// CorruptFileError means the file claimed a supported format but could not be
// parsed as one.
type CorruptFileError struct {
	Extension string
	Err       error
}

func (e *CorruptFileError) Error() string {
	return fmt.Sprintf("Could not read %s file: %v", e.Extension, e.Err)
}

func (e *CorruptFileError) Unwrap() error { return e.Err }

type EmptyDocumentError struct{ Extension string }

func (e *EmptyDocumentError) Error() string {
	return fmt.Sprintf("No extractable text found in %s file", e.Extension)
}

// CompletionError wraps a failed call to a completion provider.
type CompletionError struct {
	Provider string
	Model    string
	Err      error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("%s completion with model %s failed: %v", e.Provider, e.Model, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

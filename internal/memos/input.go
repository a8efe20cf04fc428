package memos

import "github.com/kuitang/memos/internal/errs"

// Input is a memo request body. A nil field was absent (or JSON null) in the
// request, which is distinct from an explicit empty string.
type Input struct {
	Title    *string `json:"title"`
	Contents *string `json:"contents"`
}

// TitleOrEmpty returns the title, or "" when absent.
func (in Input) TitleOrEmpty() string {
	if in.Title == nil {
		return ""
	}
	return *in.Title
}

// ContentsOrEmpty returns the contents, or "" when absent.
func (in Input) ContentsOrEmpty() string {
	if in.Contents == nil {
		return ""
	}
	return *in.Contents
}

// ValidateFull checks the body of a full replacement: both fields required.
func (in Input) ValidateFull() error {
	if in.Title == nil {
		return errs.New(errs.InvalidInput, "title is required")
	}
	if in.Contents == nil {
		return errs.New(errs.InvalidInput, "contents is required")
	}
	return nil
}

// ValidateTitleOnly checks the body of a title-only update: title required,
// contents forbidden.
func (in Input) ValidateTitleOnly() error {
	if in.Title == nil {
		return errs.New(errs.InvalidInput, "title is required")
	}
	if in.Contents != nil {
		return errs.New(errs.InvalidInput, "contents must be absent for a title-only update")
	}
	return nil
}

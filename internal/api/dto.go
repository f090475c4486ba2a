package api

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/blockref/internal/models"
	"github.com/starford/blockref/internal/refindex"
)

// PathRequest names one vault document (file open, change, delete).
type PathRequest struct {
	Path string `json:"path" example:"notes/hello.md" validate:"required"`
}

// Validate validates the request.
func (r PathRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required, validation.By(markdownPath)),
	)
}

// LayoutRequest lists the documents visible after a layout change.
type LayoutRequest struct {
	Paths []string `json:"paths" example:"notes/a.md,notes/b.md" validate:"required"`
}

// Validate validates the request.
func (r LayoutRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Paths, validation.Each(validation.Required, validation.By(markdownPath))),
	)
}

func markdownPath(v any) error {
	p, _ := v.(string)
	if p != "" && !strings.HasSuffix(p, ".md") {
		return validation.NewError("validation_markdown_path", "must be a .md path")
	}
	return nil
}

// DocumentListResponse lists indexed documents with index totals.
type DocumentListResponse struct {
	Documents []models.Document `json:"documents" validate:"required"`
	Stats     refindex.Stats    `json:"stats" validate:"required"`
}

// AcceptedResponse acknowledges a host event.
type AcceptedResponse struct {
	Status string `json:"status" example:"scheduled" validate:"required"`
}

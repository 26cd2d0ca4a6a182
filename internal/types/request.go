// Package types holds the gateway's data model: render requests, produced
// artifacts, and the cache key derived from them.
package types

import "time"

// Format is the artifact format a render request asks for.
type Format string

// Supported artifact formats.
const (
	FormatHTML  Format = "html"
	FormatMHTML Format = "mhtml"
	FormatPDF   Format = "pdf"
	FormatPNG   Format = "png"
	FormatJPEG  Format = "jpeg"
)

// Valid reports whether f is one of the supported formats.
func (f Format) Valid() bool {
	switch f {
	case FormatHTML, FormatMHTML, FormatPDF, FormatPNG, FormatJPEG:
		return true
	}
	return false
}

// ContentType returns the HTTP content type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatHTML:
		return "text/html"
	case FormatMHTML:
		return "multipart/related"
	case FormatPDF:
		return "application/pdf"
	case FormatPNG:
		return "image/png"
	case FormatJPEG:
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

// RenderOptions carries the format-specific knobs that affect the produced
// bytes. Only the fields relevant to the request's Format are consulted.
type RenderOptions struct {
	// ViewportWidth/ViewportHeight affect PNG/JPEG screenshots.
	ViewportWidth  int
	ViewportHeight int

	// Quality affects JPEG encoding (1-100). Ignored for other formats.
	Quality int

	// PaperWidth/PaperHeight/Landscape affect PDF output, in inches.
	PaperWidth  float64
	PaperHeight float64
	Landscape   bool

	// UserAgent overrides the session's configured default, when set.
	UserAgent string
}

// RenderRequest is a single request to render a URL into an Artifact.
type RenderRequest struct {
	URL     string
	Format  Format
	Options RenderOptions
}

// Artifact is the immutable result of a successful render.
type Artifact struct {
	Format      Format
	Bytes       []byte
	ContentType string
	ProducedAt  time.Time
}

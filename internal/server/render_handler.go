package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/chromegate/prerender/internal/errors"
	"github.com/chromegate/prerender/internal/types"
)

// Coordinator is the render pipeline this handler delegates to; satisfied
// by *coordinator.Coordinator.
type Coordinator interface {
	DoRender(ctx context.Context, req types.RenderRequest) (*types.Artifact, error)
}

// RenderHandler serves the gateway's one real job: GET /{url} and its
// /html, /mhtml, /pdf, /png, /jpeg siblings, each reconstructing the
// remainder of the request path plus its original query string as the
// target URL and handing it to the coordinator (spec §6).
type RenderHandler struct {
	coordinator Coordinator
	logger      *zap.Logger
}

// NewRenderHandler creates a RenderHandler bound to coord.
func NewRenderHandler(coord Coordinator, logger *zap.Logger) *RenderHandler {
	return &RenderHandler{coordinator: coord, logger: logger}
}

// Handler returns an http.HandlerFunc serving the given format from
// requests matched by a "{prefix}/{path...}"-style pattern.
func (h *RenderHandler) Handler(format types.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		target := targetURL(r)
		if target == "" {
			writeAppError(w, h.logger, apperrors.Navigate(apperrors.FaultClient, errors.New("empty target url")))
			return
		}

		req := types.RenderRequest{URL: target, Format: format}

		artifact, err := h.coordinator.DoRender(r.Context(), req)
		if err != nil {
			writeAppError(w, h.logger, err)
			return
		}

		w.Header().Set("Content-Type", artifact.ContentType)
		w.WriteHeader(http.StatusOK)
		w.Write(artifact.Bytes)
	}
}

// targetURL reconstructs the gateway-relative path's remainder and the
// original query string into the URL the caller asked to have rendered.
func targetURL(r *http.Request) string {
	path := strings.TrimPrefix(r.URL.Path, "/")
	for _, prefix := range []string{"html/", "mhtml/", "pdf/", "png/", "jpeg/"} {
		if strings.HasPrefix(path, prefix) {
			path = strings.TrimPrefix(path, prefix)
			break
		}
	}
	if path == "" {
		return ""
	}
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}
	return path
}

// writeAppError maps err to the HTTP status spec §6/§7 assign its kind
// and writes a short plaintext body; unexpected errors log at Error level.
func writeAppError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("unclassified render error", zap.Error(err))
	}
	http.Error(w, err.Error(), status)
}

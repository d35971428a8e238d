package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/okian/padmon/internal/domain/export"
)

// ExportDependencies covers data export.
type ExportDependencies interface {
	Export(ctx context.Context, w io.Writer, f export.Format, fields export.Fields, limit int) (string, error)
}

// ExportHandler serves /export.
type ExportHandler struct {
	deps ExportDependencies
}

// NewExportHandler creates a new export handler.
func NewExportHandler(deps ExportDependencies) *ExportHandler {
	return &ExportHandler{deps: deps}
}

// HandleExport handles GET /export?format=csv|json|xlsx&fields=a,b&limit=N
// requests. The file is built in memory so a failure still yields a JSON
// error body.
func (h *ExportHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	const op = "api.export"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	fields, err := export.ParseFields(q.Get("fields"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	var buf bytes.Buffer
	name, err := h.deps.Export(r.Context(), &buf, format, fields, limit)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/executor"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/apuracao/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/logger"
)

// Uploader stores one raw CSV upload.
type Uploader interface {
	Publish(ctx context.Context, name string, raw []byte) (*ingestion.UploadResponse, error)
}

// Lookup returns dataset metadata.
type Lookup interface {
	Get(ctx context.Context, id string) (*dataset.Dataset, error)
}

type Handler struct {
	uploader       Uploader
	lookup         Lookup
	stores         executor.StoreLoader
	partitionWidth int
	maxBytes       int64
	logger         *slog.Logger
}

func New(uploader Uploader, lookup Lookup, stores executor.StoreLoader, partitionWidth int, maxBytes int64) *Handler {
	return &Handler{
		uploader:       uploader,
		lookup:         lookup,
		stores:         stores,
		partitionWidth: partitionWidth,
		maxBytes:       maxBytes,
		logger:         slog.Default().With("component", "ingestion-handler"),
	}
}

// Upload accepts a multipart form with a "file" part, or a raw CSV body. The
// dataset name comes from the "name" form field or query parameter.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if h.maxBytes > 0 {
		// Allow room for multipart framing around the file itself.
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	}
	name, raw, err := h.readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", h.maxBytes))
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.uploader.Publish(ctx, name, raw)
	if err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			log.Error("dataset upload failed", "error", err, "status_code", status)
			h.writeError(w, status, "dataset upload failed")
			return
		}
		h.writeError(w, status, err.Error())
		return
	}

	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	log.Info("dataset uploaded",
		"dataset_id", resp.DatasetID,
		"rows", resp.RowCount,
		"duplicate", resp.Duplicate,
	)
	h.writeJSON(w, status, resp)
}

func (h *Handler) readUpload(r *http.Request) (string, []byte, error) {
	name := r.URL.Query().Get("name")
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return "", nil, fmt.Errorf("reading body: %w", err)
		}
		return name, raw, nil
	}

	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return "", nil, fmt.Errorf("parsing multipart form: %w", err)
	}
	if v := r.FormValue("name"); v != "" {
		name = v
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, fmt.Errorf("multipart field \"file\" is required")
	}
	defer file.Close()
	raw, err := io.ReadAll(file)
	if err != nil {
		return "", nil, fmt.Errorf("reading file: %w", err)
	}
	if name == "" {
		name = header.Filename
	}
	return name, raw, nil
}

// Get returns the dataset summary with its distinct series.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	ds, err := h.lookup.Get(ctx, id)
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	store, err := h.stores.Load(ctx, id, h.partitionWidth)
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	series := make([]string, 0, len(store.Partitions()))
	for p := range store.Partitions() {
		series = append(series, p)
	}
	sort.Strings(series)

	h.writeJSON(w, http.StatusOK, ingestion.DatasetSummary{
		DatasetID:     ds.ID,
		Name:          ds.Name,
		Fingerprint:   ds.Fingerprint,
		RowCount:      ds.RowCount,
		UsableRecords: store.Usable(),
		Series:        series,
		CreatedAt:     ds.CreatedAt,
	})
}

func (h *Handler) writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status == http.StatusNotFound {
		h.writeError(w, status, "dataset not found")
		return
	}
	logger.FromContext(r.Context()).Error("dataset lookup failed", "error", err)
	h.writeError(w, status, "dataset lookup failed")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

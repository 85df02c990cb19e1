package web

import (
	"errors"
	"io"
	"net/http"

	"github.com/JonMunkholm/catalog-importer/internal/core"
	"github.com/JonMunkholm/catalog-importer/internal/logging"
)

// multipartOverhead is the allowance for form fields and part headers on
// top of the file itself.
const multipartOverhead = 1 << 20

// uploadResponse is returned when a catalog upload is accepted.
type uploadResponse struct {
	Catalog *core.Catalog   `json:"catalog"`
	Job     *core.ImportJob `json:"job"`
	Warning string          `json:"warning,omitempty"`
}

// handleUploadCatalog accepts a multipart catalog file ("file" part, optional
// "name" field) and queues its analysis.
func (s *Server) handleUploadCatalog(w http.ResponseWriter, r *http.Request) {
	supplierID, ok := supplierParam(w, r)
	if !ok {
		return
	}

	if err := s.uploads.Acquire(r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}
	defer s.uploads.Release()

	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, core.ErrFileTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, core.ErrNoFile)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	catalog, job, err := s.service.CreateCatalog(r.Context(), core.NewCatalog{
		SupplierID:  supplierID,
		Name:        r.FormValue("name"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil && catalog == nil {
		s.respondError(w, r, err)
		return
	}

	resp := uploadResponse{Catalog: catalog, Job: job}
	if err != nil {
		// The catalog is stored; its pending job is re-dispatched on recovery.
		logging.FromContext(r.Context()).Warn("catalog stored but not dispatched",
			"catalog_id", catalog.ID,
			"error", err,
		)
		resp.Warning = "analysis is delayed: the job could not be queued"
	}
	writeJSONStatus(w, http.StatusAccepted, resp)
}

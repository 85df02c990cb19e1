package web

import (
	"net/http"

	"github.com/JonMunkholm/catalog-importer/internal/core"
	"github.com/JonMunkholm/catalog-importer/internal/logging"
)

// RegisterSupplierRequest is the body of PUT /api/suppliers/{supplierID}.
type RegisterSupplierRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRegisterSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := supplierParam(w, r)
	if !ok {
		return
	}
	var req RegisterSupplierRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	supplier, err := s.service.RegisterSupplier(r.Context(), id, req.Name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, supplier)
}

// handleDeactivateSupplier soft deletes a supplier.
func (s *Server) handleDeactivateSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := supplierParam(w, r)
	if !ok {
		return
	}
	if err := s.service.DeactivateSupplier(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetMappings replaces the field mappings of a pending catalog. The
// body is a JSON array of mappings.
func (s *Server) handleSetMappings(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "catalogID")
	if !ok {
		return
	}
	var mappings []core.FieldMapping
	if !decodeJSON(w, r, &mappings) {
		return
	}

	catalog, err := s.service.SetFieldMappings(r.Context(), id, mappings)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, catalog)
}

// handleStartImport queues the import of a mapped catalog.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "catalogID")
	if !ok {
		return
	}

	job, err := s.service.StartImport(r.Context(), id)
	if err != nil && job == nil {
		s.respondError(w, r, err)
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).Warn("import job stored but not dispatched",
			"job_id", job.ID,
			"error", err,
		)
	}
	writeJSONStatus(w, http.StatusAccepted, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "jobID")
	if !ok {
		return
	}

	job, err := s.service.CancelJob(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, job)
}

// handleDeleteCatalog removes a catalog with its products, jobs and files.
func (s *Server) handleDeleteCatalog(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "catalogID")
	if !ok {
		return
	}
	if err := s.service.DeleteCatalog(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CleanupResponse reports a manual retention sweep.
type CleanupResponse struct {
	CleanedCatalogs int `json:"cleaned_catalogs"`
}

// handleCleanup runs a retention sweep now.
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if s.sweeper == nil {
		writeError(w, http.StatusNotImplemented, "retention is not configured")
		return
	}
	cleaned, err := s.sweeper.Sweep(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, CleanupResponse{CleanedCatalogs: cleaned})
}

package web

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/catalog-importer/internal/core"
)

// fileLinkTTL is how long a presigned catalog file link stays valid.
const fileLinkTTL = 15 * time.Minute

func (s *Server) handleGetCatalog(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "catalogID")
	if !ok {
		return
	}
	catalog, err := s.service.GetCatalog(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, catalog)
}

// SchemaResponse lists the detected columns of a catalog.
type SchemaResponse struct {
	CatalogID uuid.UUID   `json:"catalog_id"`
	Columns   []string    `json:"columns"`
	Schema    core.Schema `json:"schema"`
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "catalogID")
	if !ok {
		return
	}
	schema, err := s.service.Schema(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, SchemaResponse{CatalogID: id, Columns: schema.Columns(), Schema: schema})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "catalogID")
	if !ok {
		return
	}
	st, err := s.service.Status(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, st)
}

// ProductsResponse is one page of imported products.
type ProductsResponse struct {
	Products []core.Product `json:"products"`
	Limit    int            `json:"limit"`
	Offset   int            `json:"offset"`
}

// handleListProducts pages through imported products with ?limit=&offset=.
func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "catalogID")
	if !ok {
		return
	}
	limit := min(parseIntParam(r, "limit", 100), core.MaxProductPage)
	if limit == 0 {
		limit = 100
	}
	offset := parseIntParam(r, "offset", 0)

	products, err := s.service.ListProducts(r.Context(), id, limit, offset)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if products == nil {
		products = []core.Product{}
	}
	writeJSON(w, ProductsResponse{Products: products, Limit: limit, Offset: offset})
}

// FileLinkResponse carries a temporary download link for the uploaded file.
type FileLinkResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleFileLink(w http.ResponseWriter, r *http.Request) {
	if s.presigner == nil {
		writeError(w, http.StatusNotImplemented, "file links are not available")
		return
	}
	id, ok := uuidParam(w, r, "catalogID")
	if !ok {
		return
	}
	catalog, err := s.service.GetCatalog(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	url, err := s.presigner.PresignGet(r.Context(), catalog.FilePath, fileLinkTTL)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, FileLinkResponse{URL: url, ExpiresAt: time.Now().UTC().Add(fileLinkTTL)})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "jobID")
	if !ok {
		return
	}
	job, err := s.service.GetJob(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, job)
}

package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/interfaces"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
	"github.com/ternarybob/arbor"
)

const mappingsPath = "/api/irregular-names"

// MappingHandler exposes CRUD over irregular model name mappings
type MappingHandler struct {
	storage  interfaces.MappingStorage
	validate *validator.Validate
	logger   arbor.ILogger
}

func NewMappingHandler(storage interfaces.MappingStorage, logger arbor.ILogger) *MappingHandler {
	return &MappingHandler{
		storage:  storage,
		validate: validator.New(),
		logger:   logger,
	}
}

// ListHandler handles GET /api/irregular-names
func (h *MappingHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.storage.ListMappings(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list mappings")
		WriteError(w, http.StatusInternalServerError, "failed to list mappings")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   mappings,
		"count":  len(mappings),
	})
}

// CreateHandler handles POST /api/irregular-names
func (h *MappingHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	var mapping models.IrregularMapping
	if !h.decodeMapping(w, r, &mapping) {
		return
	}
	mapping.ID = ""

	if err := h.storage.SaveMapping(r.Context(), &mapping); err != nil {
		h.writeStorageError(w, err, "failed to save mapping")
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"status": "success",
		"data":   mapping,
	})
}

// GetHandler handles GET /api/irregular-names/{id}
func (h *MappingHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	mapping, err := h.storage.GetMapping(r.Context(), mappingID(r))
	if err != nil {
		h.writeStorageError(w, err, "failed to get mapping")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   mapping,
	})
}

// UpdateHandler handles PUT /api/irregular-names/{id}
func (h *MappingHandler) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	id := mappingID(r)
	if _, err := h.storage.GetMapping(r.Context(), id); err != nil {
		h.writeStorageError(w, err, "failed to get mapping")
		return
	}

	var mapping models.IrregularMapping
	if !h.decodeMapping(w, r, &mapping) {
		return
	}
	mapping.ID = id

	if err := h.storage.SaveMapping(r.Context(), &mapping); err != nil {
		h.writeStorageError(w, err, "failed to save mapping")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   mapping,
	})
}

// DeleteHandler handles DELETE /api/irregular-names/{id}
func (h *MappingHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.DeleteMapping(r.Context(), mappingID(r)); err != nil {
		h.writeStorageError(w, err, "failed to delete mapping")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "mapping deleted",
	})
}

func (h *MappingHandler) decodeMapping(w http.ResponseWriter, r *http.Request, mapping *models.IrregularMapping) bool {
	if err := decodeJSON(r, mapping); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := h.validate.Struct(mapping); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *MappingHandler) writeStorageError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		WriteError(w, http.StatusNotFound, "mapping not found")
	case errors.Is(err, interfaces.ErrInvalidInput):
		WriteError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg(message)
		WriteError(w, http.StatusInternalServerError, message)
	}
}

// mappingID extracts {id} from /api/irregular-names/{id}
func mappingID(r *http.Request) string {
	return strings.Trim(strings.TrimPrefix(r.URL.Path, mappingsPath), "/")
}

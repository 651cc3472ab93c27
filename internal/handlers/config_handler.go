package handlers

import (
	"net/http"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/common"
	"github.com/ternarybob/arbor"
)

type ConfigHandler struct {
	logger arbor.ILogger
	config *common.Config
}

func NewConfigHandler(logger arbor.ILogger, config *common.Config) *ConfigHandler {
	return &ConfigHandler{
		logger: logger,
		config: config,
	}
}

// ModelConfigHandler handles GET /api/model-config
func (h *ConfigHandler) ModelConfigHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	modelConfig := h.config.ModelConfig
	nodeTypes := modelConfig.NodeTypes
	if nodeTypes == nil {
		nodeTypes = []string{}
	}
	extensions := modelConfig.Extensions
	if extensions == nil {
		extensions = []string{}
	}
	indices := modelConfig.NodeIndices
	if indices == nil {
		indices = map[string][]int{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "success",
		"node_types": nodeTypes,
		"extensions": extensions,
		"indices":    indices,
	})
}

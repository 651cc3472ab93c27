package models

// ModelReference is one model file a workflow points at that is not present on disk
type ModelReference struct {
	FilePath string `json:"file_path"`
	NodeType string `json:"node_type"`
	NodeID   string `json:"node_id"`
}

// MissingModel is a ModelReference enriched for the web client
type MissingModel struct {
	Filename     string  `json:"filename"`
	Name         string  `json:"name"`
	NodeType     string  `json:"node_type"`
	NodeID       string  `json:"node_id"`
	Status       string  `json:"status"`
	SearchLink   string  `json:"search_link"`
	DownloadLink *string `json:"download_link"`
}

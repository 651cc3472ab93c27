package handlers

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
)

const (
	bingSearchURL    = "https://www.bing.com/search?q="
	civitaiSearchURL = "https://civitai.com/search/models?query="
)

// Node types whose models are usually published on Civitai
var civitaiNodeTypes = map[string]bool{
	"LoraLoader":             true,
	"LoraLoaderModelOnly":    true,
	"CheckpointLoaderSimple": true,
}

// modelFileName returns the last element of a workflow path. Workflows saved on
// Windows use backslashes, so both separators count.
func modelFileName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// searchTerm is the file name without extension
func searchTerm(fileName string) string {
	return strings.TrimSuffix(fileName, filepath.Ext(fileName))
}

// siteQuery builds the search engine query for a model, restricted to the hosting sites
func siteQuery(term, nodeType string) string {
	if civitaiNodeTypes[nodeType] {
		return `"` + term + `" site:civitai.com`
	}
	return `"` + term + `" site:huggingface.co OR site:civitai.com`
}

// enrichModel turns a reference into the record sent to web clients. corrected replaces
// the workflow's file name in the search when an irregular-name mapping exists.
func enrichModel(ref models.ModelReference, corrected string) models.MissingModel {
	name := modelFileName(ref.FilePath)
	lookup := name
	if corrected != "" {
		lookup = corrected
	}
	term := searchTerm(lookup)
	query := siteQuery(term, ref.NodeType)

	var download *string
	if civitaiNodeTypes[ref.NodeType] {
		link := civitaiSearchURL + url.QueryEscape(term)
		download = &link
	}

	return models.MissingModel{
		Filename:     ref.FilePath,
		Name:         name,
		NodeType:     ref.NodeType,
		NodeID:       ref.NodeID,
		Status:       "missing",
		SearchLink:   bingSearchURL + url.QueryEscape(query),
		DownloadLink: download,
	}
}

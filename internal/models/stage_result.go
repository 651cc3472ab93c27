package models

import "fmt"

// ResultKind tags the three shapes a search or batch stage can return
type ResultKind string

const (
	// ResultPath means an artifact was produced at Path
	ResultPath ResultKind = "path"
	// ResultNothingToDo means the stage ran and there was nothing to work on
	ResultNothingToDo ResultKind = "nothing_to_do"
	// ResultNone means the stage ran but produced nothing
	ResultNone ResultKind = "none"
)

// StageResult is the tagged "path | true | none" value returned by collaborators
type StageResult struct {
	Kind ResultKind `json:"kind"`
	Path string     `json:"path,omitempty"`
}

func PathResult(path string) StageResult {
	if path == "" {
		return NoResult()
	}
	return StageResult{Kind: ResultPath, Path: path}
}

func NothingToDo() StageResult {
	return StageResult{Kind: ResultNothingToDo}
}

func NoResult() StageResult {
	return StageResult{Kind: ResultNone}
}

func (r StageResult) IsPath() bool {
	return r.Kind == ResultPath && r.Path != ""
}

func (r StageResult) String() string {
	switch r.Kind {
	case ResultPath:
		return fmt.Sprintf("path(%s)", r.Path)
	case ResultNothingToDo:
		return "nothing_to_do"
	default:
		return "none"
	}
}

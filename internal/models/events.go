// -----------------------------------------------------------------------
// Broadcast events - closed set of wire messages keyed by "type"
// -----------------------------------------------------------------------

package models

import "encoding/json"

// EventType is the routing key of a broadcast message
type EventType string

const (
	EventAnalysisStart    EventType = "analysis_start"
	EventAnalysisComplete EventType = "analysis_complete"
	EventPipelineStatus   EventType = "pipeline_status"
	EventPipelineProgress EventType = "pipeline_progress"
	EventPipelineComplete EventType = "pipeline_complete"
)

// Event is implemented only by the variants in this file.
// Each variant marshals to a flat object with "type" plus its payload fields.
type Event interface {
	EventType() EventType
	isEvent()
}

// AnalysisStartEvent is sent when an uploaded workflow is accepted for analysis
type AnalysisStartEvent struct {
	Filename string `json:"filename"`
}

// AnalysisCompleteEvent carries the enriched missing models of an upload
type AnalysisCompleteEvent struct {
	Models []MissingModel `json:"models"`
	Count  int            `json:"count"`
}

// PipelineStatusEvent is sent on every stage transition of a pipeline run
type PipelineStatusEvent struct {
	RunID   string       `json:"run_id"`
	Kind    PipelineKind `json:"kind"`
	Stage   Stage        `json:"stage"`
	Message string       `json:"message"`
}

type PipelineProgressEvent struct {
	RunID   string `json:"run_id"`
	Stage   Stage  `json:"stage"`
	Percent int    `json:"percent"`
}

// PipelineCompleteEvent is sent once per run with its terminal outcome
type PipelineCompleteEvent struct {
	RunID     string       `json:"run_id"`
	Kind      PipelineKind `json:"kind"`
	Outcome   Outcome      `json:"outcome"`
	Message   string       `json:"message"`
	Report    string       `json:"report,omitempty"`
	Aggregate string       `json:"aggregate,omitempty"`
}

func (AnalysisStartEvent) EventType() EventType    { return EventAnalysisStart }
func (AnalysisCompleteEvent) EventType() EventType { return EventAnalysisComplete }
func (PipelineStatusEvent) EventType() EventType   { return EventPipelineStatus }
func (PipelineProgressEvent) EventType() EventType { return EventPipelineProgress }
func (PipelineCompleteEvent) EventType() EventType { return EventPipelineComplete }

func (AnalysisStartEvent) isEvent()    {}
func (AnalysisCompleteEvent) isEvent() {}
func (PipelineStatusEvent) isEvent()   {}
func (PipelineProgressEvent) isEvent() {}
func (PipelineCompleteEvent) isEvent() {}

func (e AnalysisStartEvent) MarshalJSON() ([]byte, error) {
	type payload AnalysisStartEvent
	return marshalEvent(e.EventType(), payload(e))
}

func (e AnalysisCompleteEvent) MarshalJSON() ([]byte, error) {
	type payload AnalysisCompleteEvent
	if e.Models == nil {
		e.Models = []MissingModel{}
	}
	return marshalEvent(e.EventType(), payload(e))
}

func (e PipelineStatusEvent) MarshalJSON() ([]byte, error) {
	type payload PipelineStatusEvent
	return marshalEvent(e.EventType(), payload(e))
}

func (e PipelineProgressEvent) MarshalJSON() ([]byte, error) {
	type payload PipelineProgressEvent
	return marshalEvent(e.EventType(), payload(e))
}

func (e PipelineCompleteEvent) MarshalJSON() ([]byte, error) {
	type payload PipelineCompleteEvent
	return marshalEvent(e.EventType(), payload(e))
}

// marshalEvent flattens payload's fields next to "type"
func marshalEvent(eventType EventType, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	typeValue, err := json.Marshal(eventType)
	if err != nil {
		return nil, err
	}
	fields["type"] = typeValue

	return json.Marshal(fields)
}

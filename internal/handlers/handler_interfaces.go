package handlers

// PipelineRunner starts pipeline runs and resolves their results
type PipelineRunner interface {
	Analyze(workflowPath string) (string, error)
	Batch(dir, pattern string) (string, error)
	LatestResult(workflowPath string) (string, bool)
	LatestBatchResult() (string, bool)
}

// SubscriberCounter reports live broadcast subscribers
type SubscriberCounter interface {
	Count() int
}

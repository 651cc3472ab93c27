package models

// BatchRow is the per-file line of a batch summary
type BatchRow struct {
	File    string `json:"file"`
	Missing int    `json:"missing"`
	Status  string `json:"status"`
}

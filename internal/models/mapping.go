package models

import "time"

// IrregularMapping maps a model file name as written in workflows to the name it is published under
type IrregularMapping struct {
	ID            string    `json:"id"`
	OriginalName  string    `json:"original_name" badgerhold:"index" validate:"required"`
	CorrectedName string    `json:"corrected_name" validate:"required"`
	Notes         string    `json:"notes"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

package model

import "time"

// Exception is a persisted failure of one item in a batch pass, kept for
// auditing after the pass has moved on.
type Exception struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Service string `gorm:"size:100;index" json:"service"` // "tracker"
	Module  string `gorm:"size:100;index" json:"module"`  // pass name, e.g. "refresh"
	Method  string `gorm:"size:100" json:"method"`

	// RunID ties the row to the batch run that skipped the item.
	RunID string `gorm:"size:36;index" json:"run_id,omitempty"`
	// ItemKey identifies the skipped item: "@handle" or "$SYMBOL".
	ItemKey string `gorm:"size:64;index" json:"item_key,omitempty"`

	Message string `gorm:"type:text" json:"message"`
	Stack   string `gorm:"type:text" json:"stack,omitempty"` // set for recovered panics

	Level string `gorm:"size:20;index" json:"level"`

	// Context is free-form JSON.
	Context string `gorm:"type:text" json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

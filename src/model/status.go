package model

// Status is the lifecycle state stored on furus and tickers.
type Status string

const (
	StatusActive    Status = "ACTV"
	StatusCancelled Status = "CANC"
	StatusError     Status = "ERRR"
)

func (s Status) String() string {
	return string(s)
}

// IsActive reports whether the entity may be handed to a batch pass.
func (s Status) IsActive() bool {
	return s == StatusActive
}

package model

// Status describes where a release stands. Producers that cannot tell
// use StatusUnknown.
type Status string

const (
	StatusUnknown Status = "UNKNOWN"
	StatusOpen    Status = "OPEN"
	StatusClosed  Status = "CLOSED"
)

// Release is one dated release of a tracked project.
type Release struct {
	Project string `json:"project"`
	Name    string `json:"name"`
	// Date is the calendar date of the release, formatted yyyy-MM-dd.
	Date   string `json:"date"`
	Status Status `json:"status"`
	// AdditionalInfo is left empty by calendar-derived releases.
	AdditionalInfo string `json:"additionalInfo,omitempty"`
}

// ProjectReleases groups the releases of a single project, in the order
// they were produced.
type ProjectReleases struct {
	ProjectName string    `json:"projectName"`
	Releases    []Release `json:"releases"`
}

package model

// MatchMode classifies how the rows of a duplicate group relate.
type MatchMode string

const (
	// ModeCombined means the rows share both phone and email.
	ModeCombined MatchMode = "combined"
	// ModePhone means the rows share only the phone number.
	ModePhone MatchMode = "phone"
	// ModeEmail means the rows share only the email address.
	ModeEmail MatchMode = "email"
)

// AllModes returns the modes in precedence order: combined masks the others.
func AllModes() []MatchMode {
	return []MatchMode{ModeCombined, ModePhone, ModeEmail}
}

// Valid reports whether m is one of the three known modes.
func (m MatchMode) Valid() bool {
	switch m {
	case ModeCombined, ModePhone, ModeEmail:
		return true
	}
	return false
}

// Dataset describes one uploaded tabular file. It is supplied by the
// upload/storage subsystem and treated as an immutable snapshot per call.
type Dataset struct {
	ID           int64   `json:"id"`
	OwnerID      int64   `json:"owner_id"`
	FileName     string  `json:"file_name"`
	FilePath     string  `json:"file_path"`
	LastModified float64 `json:"last_modified"` // unix seconds, fractional
}

// IndexRow is one persisted normalized observation: a source record that had
// at least one non-empty normalized contact field. Empty string means the
// field was absent or unnormalizable.
type IndexRow struct {
	DatasetID int64   `json:"dataset_id"`
	OwnerID   int64   `json:"owner_id"`
	Phone     string  `json:"phone_norm"`
	Email     string  `json:"email_norm"`
	Name      string  `json:"name"` // aggregated display name, may be empty
	Mtime     float64 `json:"indexed_mtime"`
}

// MatchGroup is a transient cross-file duplicate group, recomputed from the
// index on every query. A group always spans at least two distinct datasets.
type MatchGroup struct {
	Mode         MatchMode `json:"mode"`
	Phone        string    `json:"phone,omitempty"`
	Email        string    `json:"email,omitempty"`
	TotalRecords int       `json:"total_records"`
	DatasetIDs   []int64   `json:"dataset_ids"` // distinct, first-seen order
	OwnerIDs     []int64   `json:"owner_ids"`   // distinct, first-seen order
	Names        []string  `json:"names,omitempty"`
}

// CrossTenant reports whether the group spans more than one owner.
func (g *MatchGroup) CrossTenant() bool {
	return len(g.OwnerIDs) > 1
}

// Readiness reports whether a set of datasets is fully indexed and how many
// are still rebuilding or known stale.
type Readiness struct {
	Ready   bool `json:"ready"`
	Pending int  `json:"pending"`
}

// RowFlags marks one table row with its duplicate category. The three flags
// are mutually exclusive: Combined masks Phone and Email.
type RowFlags struct {
	Combined bool `json:"combined"`
	Phone    bool `json:"phone"`
	Email    bool `json:"email"`
}

// Any reports whether the row is a duplicate in any category.
func (f RowFlags) Any() bool {
	return f.Combined || f.Phone || f.Email
}

// FileRecords holds the raw matching rows of one dataset for drill-down,
// with the originating column names.
type FileRecords struct {
	DatasetID   int64               `json:"dataset_id"`
	FileName    string              `json:"file_name"`
	PhoneColumn string              `json:"phone_column,omitempty"`
	EmailColumn string              `json:"email_column,omitempty"`
	Columns     []string            `json:"columns"`
	Records     []map[string]string `json:"records"`
}

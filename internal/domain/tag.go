package domain

// Tag is a label attachable to jobs. Tagging does not alter scheduling
// behavior; it exists for organization and survives export/import.
type Tag struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

package index

// EntityIndex defines the persisted index operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type EntityIndex interface {
	UpsertFile(f FileRow, entities []EntityRow, refs []RefRow) error
	DeleteFile(path string) error
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	UpdateValidation(rows []EntityRow) error
	GetEntity(id string) (*EntityRow, error)
	ListEntities(f EntityFilter) ([]EntityRow, int, error)
	Referrers(targetID string) ([]RefRow, error)
	ListFiles() ([]FileRow, error)
	Close() error
}

// Verify *DB satisfies EntityIndex at compile time.
var _ EntityIndex = (*DB)(nil)

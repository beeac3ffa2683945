package migration

// Script is a single forward migration discovered on disk. Scripts are
// rebuilt on every run and never mutated after loading.
type Script struct {
	Version     string // "001": digits extracted from the file name
	Description string // "create_users": free-text label from the file name
	FileName    string // "V001__create_users.sql"
	Path        string // Path the file was read from, for diagnostics
	Content     []byte // Exact on-disk bytes
	Checksum    string // SHA-256 hex digest of Content
}

// SQL returns the script content as a string.
func (s *Script) SQL() string {
	return string(s.Content)
}

// Verify reports whether the script still matches a checksum recorded when it
// was applied. The checksum is recomputed from Content rather than trusting
// the cached Checksum field.
func (s *Script) Verify(recorded string) bool {
	return ComputeChecksum(s.Content) == recorded
}

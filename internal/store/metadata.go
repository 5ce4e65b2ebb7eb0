package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// MetadataKey names a school-wide setting kept in school_metadata.
type MetadataKey string

const (
	// SchoolName is the school's display name, shown in roster exports.
	SchoolName MetadataKey = "school_name"
)

var knownMetadata = map[MetadataKey]bool{
	SchoolName: true,
}

// ErrUnknownMetadataKey is returned for keys outside the known set.
var ErrUnknownMetadataKey = errors.New("unknown metadata key")

// SetMetadata stores a school setting. An empty value removes it.
func (s *Store) SetMetadata(key MetadataKey, value string) error {
	if !knownMetadata[key] {
		return fmt.Errorf("%w: %q", ErrUnknownMetadataKey, key)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		_, err := s.db.Exec(`DELETE FROM school_metadata WHERE key = ?`, key)
		return err
	}
	_, err := s.db.Exec(
		`INSERT INTO school_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetMetadata returns a school setting, or "" if it was never set.
func (s *Store) GetMetadata(key MetadataKey) (string, error) {
	if !knownMetadata[key] {
		return "", fmt.Errorf("%w: %q", ErrUnknownMetadataKey, key)
	}
	var value string
	err := s.db.QueryRow(`SELECT value FROM school_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

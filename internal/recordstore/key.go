package recordstore

import "github.com/google/uuid"

// NewKey mints a sibling-unique key whose lexical order follows creation time.
func NewKey() string {
	return uuid.Must(uuid.NewV7()).String()
}

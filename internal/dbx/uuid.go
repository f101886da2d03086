package dbx

import "github.com/google/uuid"

// IsUUID reports whether s is a canonical 36-character UUID. Repositories
// check ids with it before querying UUID columns: Postgres rejects any other
// text with invalid_text_representation instead of returning no rows.
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

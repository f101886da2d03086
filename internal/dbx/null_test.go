package dbx

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNullHelpers(t *testing.T) {
	assert.Equal(t, sql.NullString{}, NullString(""))
	assert.Equal(t, sql.NullString{String: "x", Valid: true}, NullString("x"))

	assert.False(t, NullTime(nil).Valid)
	now := time.Now()
	nt := NullTime(&now)
	assert.True(t, nt.Valid)
	assert.True(t, now.Equal(*TimePtr(nt)))
	assert.Nil(t, TimePtr(sql.NullTime{}))
}

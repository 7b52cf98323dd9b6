package ulid

import (
	"testing"
	"time"

	oklid "github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestULID(t *testing.T) {
	tm := time.Now()
	ul1, err := MakeULID(tm)
	require.NoError(t, err)
	ul2, err := MakeULID(tm)
	require.NoError(t, err)

	assert.NotEqual(t, ul1.String(), ul2.String())
	assert.Equal(t, oklid.Timestamp(tm), ul1.Time())
	t.Logf("ulid string 1 and 2: %s | %s", ul1.String(), ul2.String())
}

func TestRunID(t *testing.T) {
	tm := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	id, err := RunID(tm)
	require.NoError(t, err)
	assert.Len(t, id, oklid.EncodedSize)

	parsed, err := oklid.Parse(id)
	require.NoError(t, err)
	assert.True(t, tm.Equal(oklid.Time(parsed.Time())))

	later, err := RunID(tm.Add(time.Second))
	require.NoError(t, err)
	assert.Less(t, id, later)
}

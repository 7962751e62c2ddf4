package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	createdAt time.Time
	id        string
}

func TestCursorRoundTripsInUTC(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	created := time.Date(2024, 6, 1, 9, 30, 0, 123456000, jakarta)

	token, err := EncodeCursor(Cursor{CreatedAt: created, ID: "1790000000000000000"})
	require.NoError(t, err)
	assert.NotContains(t, token, "=")

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.True(t, created.Equal(cursor.CreatedAt))
	assert.Equal(t, time.UTC, cursor.CreatedAt.Location())
	assert.Equal(t, "1790000000000000000", cursor.ID)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, token := range []string{"abc", "!!!", "e30", "eyJpZCI6IjEifQ"} {
		_, err := DecodeCursor(token)
		assert.ErrorIs(t, err, ErrInvalidToken, token)
	}
}

func TestPage(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := []*row{
		{createdAt: base.Add(2 * time.Minute), id: "3"},
		{createdAt: base.Add(time.Minute), id: "2"},
		{createdAt: base, id: "1"},
	}
	cursor := func(r *row) Cursor { return Cursor{CreatedAt: r.createdAt, ID: r.id} }

	page, info, err := Page(rows, 2, cursor)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, info.HasMore)
	next, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, "2", next.ID)

	page, info, err = Page(rows[2:], 2, cursor)
	require.NoError(t, err)
	assert.Len(t, page, 1)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)

	page, info, err = Page[row](nil, 2, cursor)
	require.NoError(t, err)
	assert.Empty(t, page)
	assert.False(t, info.HasMore)
}

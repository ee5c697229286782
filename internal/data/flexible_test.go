package data

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexibleIDUnmarshal(t *testing.T) {
	var doc struct {
		ID FlexibleID `json:"id"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"id": 42}`), &doc))
	n, ok := doc.ID.Int()
	assert.True(t, ok)
	assert.Equal(t, 42, n)

	require.NoError(t, json.Unmarshal([]byte(`{"id": "billing"}`), &doc))
	s, ok := doc.ID.Str()
	assert.True(t, ok)
	assert.Equal(t, "billing", s)

	// Numeric strings collapse to the integer form.
	require.NoError(t, json.Unmarshal([]byte(`{"id": "42"}`), &doc))
	n, ok = doc.ID.Int()
	assert.True(t, ok)
	assert.Equal(t, 42, n)

	require.Error(t, json.Unmarshal([]byte(`{"id": true}`), &doc))
}

func TestFlexibleIDZeroValueIsUnset(t *testing.T) {
	var fid FlexibleID
	assert.False(t, fid.IsSet())
	_, ok := fid.Int()
	assert.False(t, ok)
	_, ok = fid.Str()
	assert.False(t, ok)
}

func TestPersonDigits(t *testing.T) {
	cases := []struct {
		raw  string
		want int
		ok   bool
	}{
		{"person-7", 7, true},
		{"person-0042", 42, true},
		{"person-", 0, false},
		{"user-7", 0, false},
		{"7", 0, false},
	}
	for _, tc := range cases {
		got, ok := personDigits(tc.raw)
		assert.Equal(t, tc.ok, ok, tc.raw)
		if tc.ok {
			assert.Equal(t, tc.want, got, tc.raw)
		}
	}
}

func TestPersonResolveID(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	m := PersonModel{DB: db}
	ctx := context.Background()

	// Integer and alias forms never touch the database.
	id, err := m.ResolveID(ctx, FlexibleInt(7))
	require.NoError(t, err)
	assert.Equal(t, 7, id)

	id, err = m.ResolveID(ctx, FlexibleStr("person-9"))
	require.NoError(t, err)
	assert.Equal(t, 9, id)

	mock.ExpectQuery(`SELECT id FROM auth\.person WHERE username`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	id, err = m.ResolveID(ctx, FlexibleStr("alice"))
	require.NoError(t, err)
	assert.Equal(t, 11, id)

	_, err = m.ResolveID(ctx, FlexibleID{})
	assert.ErrorIs(t, err, ErrInvalidID)

	require.NoError(t, mock.ExpectationsWereMet())
}

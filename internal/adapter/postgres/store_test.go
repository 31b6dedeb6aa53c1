package postgres

import (
	"strings"
	"testing"

	"github.com/couchcryptid/case-data-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertQuery(t *testing.T) {
	regions := []domain.RegionIdentity{
		{ID: 4, Level: 1, Level1: "Italy", Type: domain.RegionCountry, LocationName: "Italy"},
		{ID: 9, Level: 2, Level1: "US", Level2: "New York", Type: domain.RegionState,
			LocationName: "New York, US", AltLocationName: "NY", FIPS: "36"},
	}

	sql, args, err := upsertQuery(regions, 10).ToSql()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sql, "INSERT INTO regions (id,position,region_level,"))
	assert.Contains(t, sql, "($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12),($13,")
	assert.Contains(t, sql, "on conflict (id) do update set")
	require.Len(t, args, 2*len(regionColumns))

	assert.Equal(t, int64(4), args[0])
	assert.Equal(t, 10, args[1])
	assert.Equal(t, int64(9), args[12])
	assert.Equal(t, 11, args[13])
	assert.Equal(t, "state", args[18])
	assert.Equal(t, "NY", args[20])
	assert.Equal(t, "36", args[23])
}

func TestSelectQuery(t *testing.T) {
	sql, args, err := selectQuery().ToSql()
	require.NoError(t, err)

	assert.Equal(t, "SELECT "+strings.Join(regionColumns, ", ")+" FROM regions ORDER BY position, id", sql)
	assert.Empty(t, args)
}

func TestSchemaColumnsMatch(t *testing.T) {
	for _, c := range regionColumns {
		assert.Contains(t, schema, "\t"+c+" ", c)
	}
}

package series_test

import (
	"testing"

	"github.com/couchcryptid/case-data-etl/internal/domain"
	"github.com/couchcryptid/case-data-etl/internal/series"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(t *testing.T, a *series.Accumulator, id uint32, cat domain.Category, date, raw string) {
	t.Helper()
	require.NoError(t, a.Record(id, cat, date, raw))
	require.NoError(t, a.ObserveDate(date))
}

func TestAccumulator_AxisAlignment(t *testing.T) {
	a := series.New()
	record(t, a, 1, domain.Confirmed, "20200123", "5")
	require.NoError(t, a.ObserveDate("20200124"))
	require.NoError(t, a.ObserveDate("20200122"))

	axis, err := a.FinalizeDateAxis()
	require.NoError(t, err)
	assert.Equal(t, []string{"20200122", "20200123", "20200124"}, axis)

	got, err := a.Counts(1, domain.Confirmed)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 5, 0}, got)

	deaths, err := a.Counts(1, domain.Deaths)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 0, 0}, deaths)
}

func TestAccumulator_LastWriteWins(t *testing.T) {
	a := series.New()
	record(t, a, 1, domain.Deaths, "20200301", "3")
	record(t, a, 1, domain.Deaths, "20200301", "4")
	_, err := a.FinalizeDateAxis()
	require.NoError(t, err)

	raw, ok := a.Raw(1, domain.Deaths, "20200301")
	assert.True(t, ok)
	assert.Equal(t, "4", raw)

	got, err := a.Counts(1, domain.Deaths)
	require.NoError(t, err)
	assert.Equal(t, []uint32{4}, got)
}

func TestAccumulator_NonNumericIsZero(t *testing.T) {
	a := series.New()
	record(t, a, 7, domain.Confirmed, "20200101", "")
	record(t, a, 7, domain.Confirmed, "20200102", "NA")
	record(t, a, 7, domain.Confirmed, "20200103", "-2")
	record(t, a, 7, domain.Confirmed, "20200104", "12")
	_, err := a.FinalizeDateAxis()
	require.NoError(t, err)

	got, err := a.Counts(7, domain.Confirmed)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 0, 0, 12}, got)
}

func TestAccumulator_Blocks(t *testing.T) {
	a := series.New()
	record(t, a, 1, domain.Confirmed, "20200102", "10")
	record(t, a, 1, domain.Deaths, "20200101", "1")
	record(t, a, 1, domain.Recovered, "20200102", "2")
	record(t, a, 2, domain.Active, "20200101", "8")
	_, err := a.FinalizeDateAxis()
	require.NoError(t, err)

	got, err := a.Blocks(1)
	require.NoError(t, err)
	want := [domain.NumCategories][]uint32{{0, 10}, {1, 0}, {0, 2}, {0, 0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("blocks mismatch (-want +got):\n%s", diff)
	}

	unknown, err := a.Blocks(99)
	require.NoError(t, err)
	assert.Equal(t, [domain.NumCategories][]uint32{{0, 0}, {0, 0}, {0, 0}, {0, 0}}, unknown)
}

func TestAccumulator_Finalization(t *testing.T) {
	a := series.New()

	_, err := a.Counts(1, domain.Confirmed)
	assert.ErrorIs(t, err, series.ErrAxisNotFinalized)
	assert.Nil(t, a.DateAxis())

	_, err = a.FinalizeDateAxis()
	require.NoError(t, err)
	assert.True(t, a.Finalized())
	assert.Empty(t, a.DateAxis())

	_, err = a.FinalizeDateAxis()
	assert.ErrorIs(t, err, series.ErrAxisFinalized)
	assert.ErrorIs(t, a.Record(1, domain.Confirmed, "20200101", "1"), series.ErrAxisFinalized)
	assert.ErrorIs(t, a.ObserveDate("20200101"), series.ErrAxisFinalized)
}

func TestAccumulator_RejectsUnknownCategory(t *testing.T) {
	a := series.New()
	assert.ErrorIs(t, a.Record(1, domain.Category(4), "20200101", "1"), domain.ErrUnknownCategory)
}

func TestAccumulator_DateAxisIsACopy(t *testing.T) {
	a := series.New()
	require.NoError(t, a.ObserveDate("20200101"))
	axis, err := a.FinalizeDateAxis()
	require.NoError(t, err)

	axis[0] = "mutated"
	assert.Equal(t, []string{"20200101"}, a.DateAxis())
}

func TestAccumulator_MissingLatest(t *testing.T) {
	a := series.New()
	record(t, a, 1, domain.Confirmed, "20200101", "1")
	record(t, a, 1, domain.Confirmed, "20200102", "2")
	record(t, a, 1, domain.Deaths, "20200101", "0")
	record(t, a, 2, domain.Confirmed, "20200102", "")
	_, err := a.FinalizeDateAxis()
	require.NoError(t, err)

	assert.Equal(t, []domain.Category{domain.Deaths}, a.MissingLatest(1))
	assert.Equal(t, []domain.Category{domain.Confirmed}, a.MissingLatest(2))
	assert.Nil(t, a.MissingLatest(3))
	assert.Equal(t, 2, a.Regions())
}

package artifact_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/case-data-etl/internal/artifact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifest_EncodeDecode(t *testing.T) {
	m := &artifact.Manifest{
		RunID:        "3f1c7a52-0000-4000-8000-000000000001",
		ProcessedAt:  time.Date(2020, 4, 2, 6, 0, 0, 0, time.UTC),
		Regions:      2,
		NewRegions:   1,
		RowsIngested: 4,
		Artifacts: []artifact.ArtifactInfo{
			{Name: artifact.NameCaseData, File: "caseinfo.dat", Bytes: 37},
		},
	}
	m.SetDateAxis([]string{"20200301", "20200302"})

	var buf bytes.Buffer
	require.NoError(t, m.Encode(&buf))
	assert.Contains(t, buf.String(), `"first_date": "20200301"`)

	got, err := artifact.DecodeManifest(&buf)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	info, ok := got.Artifact(artifact.NameCaseData)
	assert.True(t, ok)
	assert.Equal(t, int64(37), info.Bytes)
	_, ok = got.Artifact(artifact.NameManifest)
	assert.False(t, ok)
}

func TestManifest_EmptyAxis(t *testing.T) {
	var m artifact.Manifest
	m.SetDateAxis(nil)

	var buf bytes.Buffer
	require.NoError(t, m.Encode(&buf))
	assert.Contains(t, buf.String(), `"date_axis": []`)
	assert.NotContains(t, buf.String(), "first_date")
}

func TestDecodeManifest_RejectsUnsortedAxis(t *testing.T) {
	_, err := artifact.DecodeManifest(strings.NewReader(`{"date_axis":["20200302","20200301"]}`))
	require.Error(t, err)

	_, err = artifact.DecodeManifest(strings.NewReader(`{"date_axis":["20200301","20200301"]}`))
	require.Error(t, err)

	_, err = artifact.DecodeManifest(strings.NewReader(`not json`))
	require.Error(t, err)
}

package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestAppendRow_BuildsNestedCatalog(t *testing.T) {
	d := 12
	rows := []lessonRow{
		{courseID: "a", courseTitle: "A", track: "foundation", moduleID: strp("m1"), moduleTitle: strp("M1"), lessonID: strp("l1"), lessonTitle: strp("L1"), duration: &d},
		{courseID: "a", courseTitle: "A", track: "foundation", moduleID: strp("m1"), moduleTitle: strp("M1"), lessonID: strp("l2"), lessonTitle: strp("L2")},
		{courseID: "a", courseTitle: "A", track: "foundation", moduleID: strp("m2"), moduleTitle: strp("M2")},
		{courseID: "b", courseTitle: "B", track: "advanced"},
	}

	var got []string
	cat := appendRow(nil, rows[0])
	for _, r := range rows[1:] {
		cat = appendRow(cat, r)
	}

	require.Len(t, cat, 2)
	require.Len(t, cat[0].Modules, 2)
	for _, l := range cat[0].Modules[0].Lessons {
		got = append(got, l.ID)
	}
	assert.Equal(t, []string{"l1", "l2"}, got)
	assert.Equal(t, 12, cat[0].Modules[0].Lessons[0].DurationMinutes)
	assert.Empty(t, cat[0].Modules[1].Lessons)
	assert.Empty(t, cat[1].Modules)
}

func TestMigrationsAreOrdered(t *testing.T) {
	migs := GetMigrations()
	for i, m := range migs {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL)
		assert.NotEmpty(t, m.DownSQL)
	}
}

package course

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpath/academy-hub/internal/domain/shared"
)

func sampleCourse() Course {
	return Course{
		ID:    "business-blueprint",
		Title: "Business Blueprint",
		Modules: []Module{
			{ID: "m1", Title: "Basics", Lessons: []Lesson{{ID: "bb-1"}, {ID: "bb-2"}}},
			{ID: "m2", Title: "Empty"},
			{ID: "m3", Title: "Scale", Lessons: []Lesson{{ID: "bb-3"}}},
		},
	}
}

func setOf(ids ...string) Membership {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return func(id string) bool { return m[id] }
}

func TestCourse_CompletionDerivedFromSet(t *testing.T) {
	c := sampleCourse()

	assert.True(t, c.IsCompletedBy(setOf("bb-1", "bb-2", "bb-3")))
	assert.False(t, c.IsCompletedBy(setOf("bb-1", "bb-3")))
	assert.Equal(t, 67, c.ProgressPercent(setOf("bb-1", "bb-3")))
}

func TestCourse_EmptyCourseNeverComplete(t *testing.T) {
	c := Course{ID: "empty", Modules: []Module{{ID: "m"}}}
	assert.False(t, c.IsCompletedBy(setOf()))
	assert.Zero(t, c.ProgressPercent(setOf()))
	_, _, ok := c.FirstLesson()
	assert.False(t, ok)
}

func TestCourse_NextIncomplete(t *testing.T) {
	c := sampleCourse()
	m, l, ok := c.NextIncomplete(setOf("bb-1", "bb-2"))
	require.True(t, ok)
	assert.Equal(t, "m3", m.ID)
	assert.Equal(t, "bb-3", l.ID)

	_, _, ok = c.NextIncomplete(setOf("bb-1", "bb-2", "bb-3"))
	assert.False(t, ok)
}

func TestCatalog_ValidateRejectsDuplicateLessons(t *testing.T) {
	cat := Catalog{
		sampleCourse(),
		{ID: "other", Modules: []Module{{ID: "x", Lessons: []Lesson{{ID: "bb-2"}}}}},
	}
	err := cat.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
}

func TestCatalog_CloneIsDeep(t *testing.T) {
	cat := Catalog{sampleCourse()}
	cp := cat.Clone()
	cp[0].Modules[0].Lessons[0].Title = "changed"
	assert.Empty(t, cat[0].Modules[0].Lessons[0].Title)
	assert.Equal(t, sampleCourse().TotalLessons(), cp.LessonCount())
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, Percent(0, 0))
	assert.Equal(t, 50, Percent(1, 2))
	assert.Equal(t, 33, Percent(1, 3))
	assert.Equal(t, 67, Percent(2, 3))
	assert.Equal(t, 100, Percent(3, 3))
}

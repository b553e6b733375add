package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpath/academy-hub/internal/application/guard"
	"github.com/learnpath/academy-hub/internal/domain/course"
	"github.com/learnpath/academy-hub/internal/domain/shared"
)

type scriptedGuard struct {
	decisions []guard.Decision
	calls     int
}

func (g *scriptedGuard) Revalidate(context.Context) guard.Decision {
	d := g.decisions[g.calls]
	g.calls++
	return d
}

func TestSessionPollJob(t *testing.T) {
	g := &scriptedGuard{decisions: []guard.Decision{
		{Allowed: true},
		{Redirect: guard.LoginPath + guard.RedirectExpired, Cleared: true, Reason: shared.ErrSessionExpired},
		{Allowed: true},
	}}
	var ended []guard.Decision
	job := NewSessionPollJob(g, nil, func(d guard.Decision) { ended = append(ended, d) })

	require.NoError(t, job.Run(context.Background()))
	assert.False(t, job.Ended())

	require.NoError(t, job.Run(context.Background()))
	assert.True(t, job.Ended())
	require.Len(t, ended, 1)
	assert.ErrorIs(t, ended[0].Reason, shared.ErrSessionExpired)

	// no further server calls once ended
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 2, g.calls)

	job.Reset()
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 3, g.calls)
	assert.True(t, job.LastDecision().Allowed)
}

type fakePurger struct {
	n   int64
	err error
}

func (p *fakePurger) PurgeExpired(ctx context.Context) (int64, error) {
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("no deadline")
	}
	return p.n, p.err
}

func TestPurgeExpiredJob(t *testing.T) {
	require.NoError(t, NewPurgeExpiredJob(&fakePurger{n: 4}, 0, nil).Run(context.Background()))

	err := NewPurgeExpiredJob(&fakePurger{err: errors.New("locked")}, 0, nil).Run(context.Background())
	assert.ErrorContains(t, err, "locked")
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return errors.New("redis down")
}

func TestCatalogWarmupJob(t *testing.T) {
	good := course.SourceFunc(func(context.Context) (course.Catalog, error) {
		return course.Catalog{{
			ID: "bb", Title: "Business Blueprint",
			Modules: []course.Module{{ID: "m1", Title: "Start", Lessons: []course.Lesson{{ID: "l1", Title: "Hello"}}}},
		}}, nil
	})
	inv := &countingInvalidator{}
	require.NoError(t, NewCatalogWarmupJob(good, inv, nil).Run(context.Background()))
	assert.Equal(t, 1, inv.calls)

	dup := course.SourceFunc(func(context.Context) (course.Catalog, error) {
		c := course.Course{ID: "bb", Title: "BB", Modules: []course.Module{{ID: "m", Title: "M", Lessons: []course.Lesson{{ID: "l", Title: "L"}}}}}
		return course.Catalog{c, c}, nil
	})
	assert.Error(t, NewCatalogWarmupJob(dup, nil, nil).Run(context.Background()))

	down := course.SourceFunc(func(context.Context) (course.Catalog, error) {
		return nil, shared.ErrCatalogUnavailable
	})
	assert.ErrorIs(t, NewCatalogWarmupJob(down, nil, nil).Run(context.Background()), shared.ErrCatalogUnavailable)
}

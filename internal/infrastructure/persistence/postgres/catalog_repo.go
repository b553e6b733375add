package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/learnpath/academy-hub/internal/domain/course"
	"github.com/learnpath/academy-hub/internal/domain/shared"
)

// CatalogRepository stores the course catalog in relational tables.
// It implements course.Source.
type CatalogRepository struct {
	conn *Connection
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(conn *Connection) *CatalogRepository {
	return &CatalogRepository{conn: conn}
}

var _ course.Source = (*CatalogRepository)(nil)

type lessonRow struct {
	courseID, courseTitle, courseDesc, track string
	moduleID, moduleTitle                    *string
	lessonID, lessonTitle                    *string
	duration                                 *int
}

// FetchCourses loads all courses in position order.
func (r *CatalogRepository) FetchCourses(ctx context.Context) (course.Catalog, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT c.id, c.title, c.description, c.track,
		       m.id, m.title,
		       l.id, l.title, l.duration_minutes
		FROM courses c
		LEFT JOIN course_modules m ON m.course_id = c.id
		LEFT JOIN lessons l ON l.course_id = m.course_id AND l.module_id = m.id
		ORDER BY c.position, c.id, m.position, m.id, l.position, l.id
	`)
	if err != nil {
		return nil, shared.WrapError("catalog", "Fetch", shared.ErrServiceUnavailable, "query catalog", err)
	}
	defer rows.Close()

	var catalog course.Catalog
	for rows.Next() {
		var row lessonRow
		if err := rows.Scan(&row.courseID, &row.courseTitle, &row.courseDesc, &row.track,
			&row.moduleID, &row.moduleTitle, &row.lessonID, &row.lessonTitle, &row.duration); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		catalog = appendRow(catalog, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return catalog, nil
}

func appendRow(catalog course.Catalog, row lessonRow) course.Catalog {
	if n := len(catalog); n == 0 || catalog[n-1].ID != row.courseID {
		catalog = append(catalog, course.Course{
			ID:          row.courseID,
			Title:       row.courseTitle,
			Description: row.courseDesc,
			Track:       course.Track(row.track),
		})
	}
	c := &catalog[len(catalog)-1]
	if row.moduleID == nil {
		return catalog
	}
	if n := len(c.Modules); n == 0 || c.Modules[n-1].ID != *row.moduleID {
		c.Modules = append(c.Modules, course.Module{ID: *row.moduleID, Title: deref(row.moduleTitle)})
	}
	if row.lessonID == nil {
		return catalog
	}
	m := &c.Modules[len(c.Modules)-1]
	l := course.Lesson{ID: *row.lessonID, Title: deref(row.lessonTitle)}
	if row.duration != nil {
		l.DurationMinutes = *row.duration
	}
	m.Lessons = append(m.Lessons, l)
	return catalog
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ReplaceAll swaps the stored catalog for the given one in a single transaction.
func (r *CatalogRepository) ReplaceAll(ctx context.Context, catalog course.Catalog) error {
	if err := catalog.Validate(); err != nil {
		return err
	}
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM courses`); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for ci, c := range catalog {
			batch.Queue(`INSERT INTO courses (id, title, description, track, position) VALUES ($1, $2, $3, $4, $5)`,
				c.ID, c.Title, c.Description, string(c.EffectiveTrack()), ci)
			for mi, m := range c.Modules {
				batch.Queue(`INSERT INTO course_modules (id, course_id, title, position) VALUES ($1, $2, $3, $4)`,
					m.ID, c.ID, m.Title, mi)
				for li, l := range m.Lessons {
					batch.Queue(`INSERT INTO lessons (id, course_id, module_id, title, duration_minutes, position) VALUES ($1, $2, $3, $4, $5, $6)`,
						l.ID, c.ID, m.ID, l.Title, l.DurationMinutes, li)
				}
			}
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

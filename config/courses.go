package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// CourseSettings is the COURSE_CONFIG document: the "start here" priority
// list and the copy shown next to the continue-learning target.
type CourseSettings struct {
	Primary   string       `yaml:"primary"`
	Fallbacks []string     `yaml:"fallbacks"`
	Copy      ContinueCopy `yaml:"copy"`
}

// ContinueCopy holds one copy block per continuation state.
type ContinueCopy struct {
	NewUser    CopyBlock `yaml:"new_user"`
	InProgress CopyBlock `yaml:"in_progress"`
	Completed  CopyBlock `yaml:"completed"`
}

// CopyBlock is a headline plus call to action.
type CopyBlock struct {
	Headline string `yaml:"headline"`
	CTA      string `yaml:"cta"`
}

// DefaultCourseSettings is used when COURSE_CONFIG is absent.
func DefaultCourseSettings() CourseSettings {
	return CourseSettings{
		Primary:   "business-blueprint",
		Fallbacks: []string{"affiliate-foundations", "traffic-mastery"},
		Copy: ContinueCopy{
			NewUser:    CopyBlock{Headline: "Start your journey", CTA: "Start Learning"},
			InProgress: CopyBlock{Headline: "Pick up where you left off", CTA: "Continue Learning"},
			Completed:  CopyBlock{Headline: "You finished every course", CTA: "Browse Courses"},
		},
	}
}

// Priority returns primary followed by fallbacks, without blanks or repeats.
func (s CourseSettings) Priority() []string {
	seen := make(map[string]struct{}, len(s.Fallbacks)+1)
	out := make([]string, 0, len(s.Fallbacks)+1)
	for _, id := range append([]string{s.Primary}, s.Fallbacks...) {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// LoadCourseSettings reads path over the defaults. A missing file yields the defaults.
func LoadCourseSettings(path string) (CourseSettings, error) {
	settings := DefaultCourseSettings()
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("read course config: %w", err)
	}
	return ParseCourseSettings(data)
}

// ParseCourseSettings decodes a COURSE_CONFIG document over the defaults.
func ParseCourseSettings(data []byte) (CourseSettings, error) {
	settings := DefaultCourseSettings()
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return DefaultCourseSettings(), fmt.Errorf("parse course config: %w", err)
	}
	if settings.Primary == "" && len(settings.Fallbacks) == 0 {
		return settings, fmt.Errorf("course config: primary or fallbacks required")
	}
	return settings, nil
}

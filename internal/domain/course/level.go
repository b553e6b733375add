package course

// OpenEnded marks the upper bound of the top tier.
const OpenEnded = -1

// LevelTier is one row of a level table, plus the caller's progress toward the next row.
type LevelTier struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
	Icon   string `json:"icon"`
	Color  string `json:"color"`
	Min    int    `json:"min"`
	Max    int    `json:"max"`

	// Progress is the percentage from Min toward the next tier's Min; 0 at the top tier.
	Progress int `json:"progress"`
	// NextMin is the next tier's Min, or OpenEnded at the top tier.
	NextMin int `json:"nextMin"`
}

// IsTop reports whether the tier has no upper bound.
func (t LevelTier) IsTop() bool { return t.Max == OpenEnded }

// LevelTable is an ordered, contiguous list of tiers starting at 0.
type LevelTable []LevelTier

// CourseLevels maps completed course counts to tiers.
var CourseLevels = LevelTable{
	{Number: 1, Name: "Newcomer", Icon: "🌱", Color: "#9CA3AF", Min: 0, Max: 0},
	{Number: 2, Name: "Explorer", Icon: "🧭", Color: "#60A5FA", Min: 1, Max: 2},
	{Number: 3, Name: "Builder", Icon: "🛠️", Color: "#34D399", Min: 3, Max: 4},
	{Number: 4, Name: "Strategist", Icon: "♟️", Color: "#A78BFA", Min: 5, Max: 7},
	{Number: 5, Name: "Expert", Icon: "🏆", Color: "#F59E0B", Min: 8, Max: 11},
	{Number: 6, Name: "Master", Icon: "👑", Color: "#EF4444", Min: 12, Max: OpenEnded},
}

// XPLevels maps total XP to tiers.
var XPLevels = LevelTable{
	{Number: 1, Name: "Rookie", Icon: "⭐", Color: "#9CA3AF", Min: 0, Max: 499},
	{Number: 2, Name: "Apprentice", Icon: "🌟", Color: "#60A5FA", Min: 500, Max: 1499},
	{Number: 3, Name: "Practitioner", Icon: "💫", Color: "#34D399", Min: 1500, Max: 3499},
	{Number: 4, Name: "Professional", Icon: "🚀", Color: "#A78BFA", Min: 3500, Max: 6999},
	{Number: 5, Name: "Elite", Icon: "💎", Color: "#F59E0B", Min: 7000, Max: 11999},
	{Number: 6, Name: "Legend", Icon: "🔥", Color: "#EF4444", Min: 12000, Max: OpenEnded},
}

// Lookup returns the tier containing value. Negative values are treated as 0.
func (t LevelTable) Lookup(value int) LevelTier {
	if value < 0 {
		value = 0
	}
	idx := 0
	for i, tier := range t {
		if value >= tier.Min && (tier.Max == OpenEnded || value <= tier.Max) {
			idx = i
			break
		}
	}
	tier := t[idx]
	if tier.IsTop() || idx == len(t)-1 {
		tier.Progress = 0
		tier.NextMin = OpenEnded
		return tier
	}
	next := t[idx+1].Min
	tier.NextMin = next
	span := next - tier.Min
	tier.Progress = Percent(value-tier.Min, span)
	if tier.Progress > 100 {
		tier.Progress = 100
	}
	return tier
}

// Validate checks that tiers start at 0, are contiguous and end open.
func (t LevelTable) Validate() bool {
	if len(t) == 0 || t[0].Min != 0 {
		return false
	}
	for i := 1; i < len(t); i++ {
		prev := t[i-1]
		if prev.Max == OpenEnded || t[i].Min != prev.Max+1 || t[i].Number <= prev.Number {
			return false
		}
	}
	return t[len(t)-1].Max == OpenEnded
}

// CalculateUserLevel maps a completed course count to its tier.
func CalculateUserLevel(completedCourses int) LevelTier {
	return CourseLevels.Lookup(completedCourses)
}

// CalculateXPLevel maps total XP to its tier.
func CalculateXPLevel(xp int) LevelTier {
	return XPLevels.Lookup(xp)
}

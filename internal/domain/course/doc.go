// Package course contains the catalog model of the academy and the level tables.
//
// A Course is an ordered list of Modules and a Module an ordered list of Lessons.
// Lessons carry no completion flag: whether a lesson is done is answered only by
// the learner's completion set (see package progress), and every count in this
// package takes a membership function for that reason.
//
//	done := state.Has
//	completed := c.CountCompleted(done)
//	if c.IsCompletedBy(done) { ... }
//
// Level tiers are static tables. CalculateUserLevel maps a completed course
// count and CalculateXPLevel maps an XP total; both are total over int.
package course

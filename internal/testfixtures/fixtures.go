package testfixtures

import "time"

// ReferenceTime is the shared anchor instant tests build schedules around.
// Wednesday, so weekday arithmetic exercises both directions of the week.
func ReferenceTime() time.Time {
	return time.Date(2024, time.March, 6, 12, 0, 0, 0, time.UTC)
}

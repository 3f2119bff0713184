package board

import (
	"fmt"
	"time"
)

const TimeLayout = "2006-01-02 15:04:05"

// FormatElapsed: "42초", "3분 5초", "2시간 7분". Отрицательное считаем как 0.
func FormatElapsed(d time.Duration) string {
	s := int64(d / time.Second)
	if s < 0 {
		s = 0
	}
	switch {
	case s < 60:
		return fmt.Sprintf("%d초", s)
	case s < 3600:
		return fmt.Sprintf("%d분 %d초", s/60, s%60)
	default:
		return fmt.Sprintf("%d시간 %d분", s/3600, (s%3600)/60)
	}
}

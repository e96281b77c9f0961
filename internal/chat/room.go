package chat

import "fmt"

// RoomKey computes the canonical conversation identifier for a doctor/patient
// pair. The smaller id always comes first, so both directions of a
// conversation land in the same room.
func RoomKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d-%d", a, b)
}

package watcher

import (
	"fmt"

	"github.com/Leantar/incrond/models"
)

// Event is one change notification for a watch. Name is the entry inside a
// watched directory the event is about and is empty for events on the
// watched path itself.
type Event struct {
	WatchID int
	Mask    uint32
	Cookie  uint32
	Name    string
}

func (e Event) Has(mask uint32) bool {
	return e.Mask&mask != 0
}

// Overflow reports a dropped-events notification. It carries no watch id.
func (e Event) Overflow() bool {
	return e.Mask&models.InQOverflow != 0
}

func (e Event) String() string {
	return fmt.Sprintf("wd=%d mask=%s name=%q", e.WatchID, models.MaskText(e.Mask), e.Name)
}

package journal

import "strings"

// ActivityDetector decides whether a reported dashboard state is genuine
// user activity or just a re-delivery of the same view. Detection is content
// based: the visible uuids in order plus the selected uuid are reduced to a
// fingerprint, and only a changed fingerprint counts as activity. Two
// structurally identical views therefore never register as activity no
// matter how they were allocated upstream.
//
// Not safe for concurrent use; the coordinator loop is the only caller.
type ActivityDetector struct {
	last   string
	primed bool
}

func NewActivityDetector() *ActivityDetector {
	return &ActivityDetector{}
}

// Observe records the current view and reports whether it differs from the
// previous one. The stored fingerprint is updated regardless of the verdict,
// so repeating the same view keeps answering false. The first observation
// after construction or Reset is absorbed silently.
func (d *ActivityDetector) Observe(visible []Entry, selectedUUID string) bool {
	fp := fingerprint(visible, selectedUUID)
	changed := d.primed && fp != d.last
	d.last = fp
	d.primed = true
	return changed
}

// Reset forgets the stored view. Callers use this right after a manual mode
// change so the data refresh that rides along with it is not misread as
// browsing activity; detection resumes with the observation after next.
func (d *ActivityDetector) Reset() {
	d.last = ""
	d.primed = false
}

func fingerprint(visible []Entry, selectedUUID string) string {
	var b strings.Builder
	for _, e := range visible {
		b.WriteString(e.UUID)
		b.WriteByte(';')
	}
	b.WriteByte('|')
	b.WriteString(selectedUUID)
	return b.String()
}

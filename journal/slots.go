package journal

import "sort"

// Slots assigns every entry of the full collection its LED strip position:
// slot 0 is the earliest-created entry and slots grow monotonically with
// creation date, ties broken by lexical uuid order so the assignment is
// total. The assignment depends only on the full collection, never on the
// active filter, so filtering can never move an entry's LED. It is
// recomputed on demand and never persisted.
func Slots(all []Entry) map[string]int {
	ordered := make([]Entry, len(all))
	copy(ordered, all)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].CreationDate.Equal(ordered[j].CreationDate) {
			return ordered[i].UUID < ordered[j].UUID
		}
		return ordered[i].CreationDate.Before(ordered[j].CreationDate)
	})
	slots := make(map[string]int, len(ordered))
	for i, e := range ordered {
		slots[e.UUID] = i
	}
	return slots
}

// SlotOf returns the strip position of a single entry, or false when the
// uuid is not part of the collection.
func SlotOf(uuid string, all []Entry) (int, bool) {
	slot, ok := Slots(all)[uuid]
	return slot, ok
}

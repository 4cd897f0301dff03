package state

// journalEntry undoes exactly one mutation; IntraBlockState keeps an
// append-only slice of these and RevertToSnapshot replays them backward,
// the same checkpoint/rollback shape an in-progress transaction needs ("Pending
// changes live in a thread-local buffer").
type journalEntry func()

type journal struct {
	entries []journalEntry
}

func (j *journal) append(revert journalEntry) { j.entries = append(j.entries, revert) }

func (j *journal) snapshot() int { return len(j.entries) }

func (j *journal) revertTo(snapshot int) {
	for i := len(j.entries) - 1; i >= snapshot; i-- {
		j.entries[i]()
	}
	j.entries = j.entries[:snapshot]
}

package chat

import "sort"

// Reconcile returns a copy of msgs where the entry with tempID takes the given
// status. With a confirmed record the entry also takes the record's fields and
// permanent id, staying at its position; any other entry already carrying
// that id is dropped. msgs is not modified.
func Reconcile(msgs []Message, tempID string, status Status, confirmed *Message) []Message {
	pos := -1
	for i, m := range msgs {
		if m.ID == tempID {
			pos = i
			break
		}
	}

	out := make([]Message, 0, len(msgs))
	for i, m := range msgs {
		switch {
		case i == pos:
			if confirmed != nil {
				m = *confirmed
			}
			m.Status = status
		case pos >= 0 && confirmed != nil && m.ID == confirmed.ID:
			continue
		}
		out = append(out, m)
	}
	return out
}

// Merge concatenates existing and page, keeps the first entry of every id and
// sorts the result ascending by CreatedAt. Merging the same page again yields
// the same result.
func Merge(existing, page []Message) []Message {
	out := make([]Message, 0, len(existing)+len(page))
	seen := make(map[string]bool, len(existing)+len(page))
	for _, src := range [][]Message{existing, page} {
		for _, m := range src {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			out = append(out, m)
		}
	}
	sortByTime(out)
	return out
}

func sortByTime(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

package query

// KV is a key paired with its value.
type KV[K comparable, V any] struct {
	Key   K
	Value V
}

// Batch is a change set that does not retain previous values. Consumers apply Removed first and
// then UpdateOrInsert; a key may appear in both.
type Batch[K comparable, V any] struct {
	Removed        []K
	UpdateOrInsert []KV[K, V]
}

// IsEmpty reports whether the batch carries no change.
func (b *Batch[K, V]) IsEmpty() bool {
	return len(b.Removed) == 0 && len(b.UpdateOrInsert) == 0
}

// ToBatch drops the previous values of changes.
func ToBatch[K comparable, V any](changes Changes[K, V]) *Batch[K, V] {
	b := &Batch[K, V]{}
	for k, c := range changes.All() {
		if v, ok := c.NewValue(); ok {
			b.UpdateOrInsert = append(b.UpdateOrInsert, KV[K, V]{Key: k, Value: v})
			continue
		}
		b.Removed = append(b.Removed, k)
	}
	return b
}

// MergeBatches combines batches observed in order into one, where the last witnessed state
// of each key wins.
func MergeBatches[K comparable, V any](batches ...*Batch[K, V]) *Batch[K, V] {
	removed := make(map[K]struct{})
	upserts := make(map[K]V)

	for _, b := range batches {
		for _, k := range b.Removed {
			removed[k] = struct{}{}
			delete(upserts, k)
		}
		for _, kv := range b.UpdateOrInsert {
			upserts[kv.Key] = kv.Value
			delete(removed, kv.Key)
		}
	}

	out := &Batch[K, V]{
		Removed:        make([]K, 0, len(removed)),
		UpdateOrInsert: make([]KV[K, V], 0, len(upserts)),
	}
	for k := range removed {
		out.Removed = append(out.Removed, k)
	}
	for k, v := range upserts {
		out.UpdateOrInsert = append(out.UpdateOrInsert, KV[K, V]{Key: k, Value: v})
	}
	return out
}

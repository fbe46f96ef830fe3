package utils

func CloneMap[K comparable, V any](m map[K]V) map[K]V {
	cloneM := make(map[K]V, len(m))
	for k, v := range m {
		cloneM[k] = v
	}
	return cloneM
}

// CloneSlice copies the backing array so callers can hold a stable snapshot.
func CloneSlice[V any](a []V) []V {
	c := make([]V, len(a))
	copy(c, a)
	return c
}

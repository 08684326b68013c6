package domain

// paginate takes limit+1 items to learn whether another page exists and
// returns the first limit of them.
func paginate[T any](items []T, limit int) ([]T, bool) {
	fetched := items
	if len(fetched) > limit+1 {
		fetched = fetched[:limit+1]
	}
	if len(fetched) > limit {
		return fetched[:limit], true
	}
	return fetched, false
}

package relations

import "strconv"

// Paginate clamps page into range and returns the window [start, end) along
// with the clamped page and total page count. A nil or empty slice yields
// one empty page.
func Paginate[T any](items []T, page, perPage int) ([]T, int, int) {
	if perPage <= 0 {
		perPage = defaultPageSize
	}
	totalPages := (len(items) + perPage - 1) / perPage
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	start := (page - 1) * perPage
	end := start + perPage
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], page, totalPages
}

// PageRange builds a pagination strip with ellipsis: first page, last page,
// and a window of two around the current page.
func PageRange(page, totalPages int) []string {
	var pages []string
	for p := 1; p <= totalPages; p++ {
		switch {
		case p == 1 || p == totalPages || abs(p-page) <= 2:
			pages = append(pages, strconv.Itoa(p))
		case len(pages) > 0 && pages[len(pages)-1] != "...":
			pages = append(pages, "...")
		}
	}
	return pages
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

package query

import "civicfix/pkg/models"

type Page struct {
	Items      []models.Complaint
	Number     int
	Size       int
	TotalPages int
}

// TotalPages is ceil(count/size).
func TotalPages(count, size int) int {
	if size <= 0 {
		size = DefaultPageSize
	}
	return (count + size - 1) / size
}

// ClampPage keeps page inside [1, totalPages]; an empty list still has page 1.
func ClampPage(page, totalPages int) int {
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}
	return page
}

// Paginate returns the slice [(page-1)*size, page*size) of items after clamping page.
func Paginate(items []models.Complaint, page, size int) Page {
	if size <= 0 {
		size = DefaultPageSize
	}
	total := TotalPages(len(items), size)
	page = ClampPage(page, total)

	start := (page - 1) * size
	end := min(start+size, len(items))
	if start > end {
		start = end
	}

	out := make([]models.Complaint, end-start)
	copy(out, items[start:end])

	return Page{
		Items:      out,
		Number:     page,
		Size:       size,
		TotalPages: total,
	}
}

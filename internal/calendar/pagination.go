package calendar

// Page описывает одну страницу элементов.
type Page[T any] struct {
	Items    []T  `json:"items"`
	Page     int  `json:"page"`      // номер страницы (с 1)
	PageSize int  `json:"page_size"` // количество элементов на странице
	HasNext  bool `json:"has_next"`
	HasPrev  bool `json:"has_prev"`
	Total    int  `json:"total"`
}

const DefaultPageSize = 20

// PageBounds нормализует page/pageSize и возвращает limit/offset для запроса.
func PageBounds(page, pageSize int) (limit, offset, normPage int) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if page <= 0 {
		page = 1
	}
	return pageSize, (page - 1) * pageSize, page
}

// NewPage собирает страницу из уже выбранных элементов и общего количества.
func NewPage[T any](items []T, page, pageSize, total int) Page[T] {
	pageSize, offset, page := PageBounds(page, pageSize)
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
		HasPrev:  page > 1,
		HasNext:  offset+len(items) < total,
		Total:    total,
	}
}

// Paginate возвращает срез items для указанной страницы и метаданные.
// page нумеруется с 1. При некорректных значениях используются дефолты.
func Paginate[T any](items []T, page, pageSize int) Page[T] {
	total := len(items)
	pageSize, start, page := PageBounds(page, pageSize)

	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return NewPage(items[start:end], page, pageSize, total)
}

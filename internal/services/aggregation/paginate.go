package aggregation

import (
	"context"
	"fmt"
)

type pageFetch[T any] func(ctx context.Context, cursor int64) (items []T, next int64, err error)

// paginate листает до короткой страницы. Повтор курсора или предел страниц
// завершают цикл с диагностикой, а не ошибкой.
func paginate[T any](ctx context.Context, what string, pageSize, maxPages int, fetch pageFetch[T], diag func(string)) ([]T, error) {
	var (
		all    []T
		cursor int64
		seen   = map[int64]struct{}{0: {}}
	)
	for page := 0; ; page++ {
		if page >= maxPages {
			diag(fmt.Sprintf("%s: page limit %d reached at cursor %d", what, maxPages, cursor))
			return all, nil
		}
		items, next, err := fetch(ctx, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) < pageSize {
			return all, nil
		}
		if _, dup := seen[next]; dup {
			diag(fmt.Sprintf("%s: repeated cursor %d after page %d", what, next, page+1))
			return all, nil
		}
		seen[next] = struct{}{}
		cursor = next
	}
}

func chunk(ids []int64, size int) [][]int64 {
	if len(ids) == 0 {
		return nil
	}
	out := make([][]int64, 0, (len(ids)+size-1)/size)
	for len(ids) > size {
		out = append(out, ids[:size:size])
		ids = ids[size:]
	}
	return append(out, ids)
}

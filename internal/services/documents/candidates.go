package documents

import "strings"

var sizeVariants = []string{"/big/", "/c516x688/", "/tm/"}

// imageCandidates: исходный URL, затем тот же ресурс в другом формате и других размерах.
func imageCandidates(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var out []string
	seen := map[string]struct{}{}
	add := func(u string) {
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}

	add(raw)
	add(swapExt(raw))

	for _, from := range sizeVariants {
		if !strings.Contains(raw, from) {
			continue
		}
		for _, to := range sizeVariants {
			if to == from {
				continue
			}
			v := strings.Replace(raw, from, to, 1)
			add(v)
			add(swapExt(v))
		}
		break
	}
	return out
}

func swapExt(u string) string {
	path, query := u, ""
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		path, query = u[:i], u[i:]
	}
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".webp"):
		return path[:len(path)-len(".webp")] + ".jpg" + query
	case strings.HasSuffix(lower, ".jpg"):
		return path[:len(path)-len(".jpg")] + ".webp" + query
	case strings.HasSuffix(lower, ".jpeg"):
		return path[:len(path)-len(".jpeg")] + ".webp" + query
	}
	return u
}

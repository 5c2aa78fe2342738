package library

import "github.com/therealutkarshpriyadarshi/videosync/pkg/models"

// Stats summarizes the rendered library
type Stats struct {
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"by_category"`
	HasCurrent bool           `json:"has_current"`
}

// categoriesOf returns "All" followed by each distinct category in list order
func categoriesOf(videos []*models.Video) []string {
	categories := []string{models.AllCategories}
	seen := map[string]struct{}{models.AllCategories: {}}
	for _, v := range videos {
		c := v.CategoryOrDefault()
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		categories = append(categories, c)
	}
	return categories
}

func filterByCategory(videos []*models.Video, category string) []*models.Video {
	if category == models.AllCategories {
		return cloneAll(videos)
	}
	out := make([]*models.Video, 0)
	for _, v := range videos {
		if v.CategoryOrDefault() == category {
			out = append(out, v.Clone())
		}
	}
	return out
}

// GetFilteredVideos returns the rendered videos in the selected category
func (e *Engine) GetFilteredVideos() []*models.Video {
	e.mu.Lock()
	defer e.mu.Unlock()
	return filterByCategory(e.renderedLocked(), e.selectedCategory)
}

// GetVideoStats counts the rendered videos per category
func (e *Engine) GetVideoStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	videos := e.renderedLocked()
	stats := Stats{
		Total:      len(videos),
		ByCategory: make(map[string]int),
		HasCurrent: e.currentLocked(videos) != nil,
	}
	for _, v := range videos {
		stats.ByCategory[v.CategoryOrDefault()]++
	}
	return stats
}

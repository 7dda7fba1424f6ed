package caching

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// ViewCache keeps one Set per view. When more than maxViews views are
// tracked the least recently used one is dropped.
type ViewCache struct {
	perView int
	views   *lru.Cache[int64, *Set]
}

func NewViewCache(maxViews, perView int) *ViewCache {
	// lru.New only fails for non-positive sizes.
	views, _ := lru.New[int64, *Set](max(1, maxViews))
	return &ViewCache{perView: perView, views: views}
}

// Contains reports whether the sample was added under view.
func (vc *ViewCache) Contains(view int64, namespace, v []byte) bool {
	set, ok := vc.views.Get(view)
	return ok && set.Contains(namespace, v)
}

// Add records the sample under view and reports whether it was new.
func (vc *ViewCache) Add(view int64, namespace, v []byte) bool {
	set, ok := vc.views.Get(view)
	if !ok {
		set = NewSet(vc.perView)
		if _, evicted := vc.views.ContainsOrAdd(view, set); evicted {
			log.Debugw("evicted least recently used view", "added", view)
		}
		// A concurrent Add for the same view may have won.
		if existing, ok := vc.views.Get(view); ok {
			set = existing
		}
	}
	return !set.ContainsOrAdd(namespace, v)
}

// Prune drops every view below view and returns how many were dropped.
func (vc *ViewCache) Prune(view int64) int {
	var pruned int
	for _, v := range vc.views.Keys() {
		if v < view && vc.views.Remove(v) {
			pruned++
		}
	}
	return pruned
}

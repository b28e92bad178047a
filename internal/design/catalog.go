package design

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidProperty marks a property value outside the catalog.
var ErrInvalidProperty = errors.New("invalid design property")

// Allowed property values. The first entry of each list is the default.
var (
	Occasions = []string{
		"default", "baby", "birthday", "day-in-the-life", "graduation",
		"holiday", "pet", "sports", "travel", "wedding",
	}
	BookSizes            = []string{"10x10", "12x12", "8x8", "10x8", "11x8", "11x14"}
	CoverTypes           = []string{"sc", "hc", "pl"}
	PageTypes            = []string{"sp", "dl", "lf"}
	ImageDensities       = []string{"low", "medium", "high"}
	ImageFilteringLevels = []string{"best", "most", "all"}
	EmbellishmentLevels  = []string{"none", "few", "lots"}
	TextStickerLevels    = []string{"none", "few", "lots"}
)

// Styles maps engine style ids to their names.
var Styles = map[int]string{
	1004: "modern",
	1005: "classic",
	1006: "bold",
	1007: "minimal",
	1008: "playful",
}

// StyleIDs returns the style ids in ascending order.
func StyleIDs() []int {
	ids := make([]int, 0, len(Styles))
	for id := range Styles {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// CatalogEntry lists the allowed values of one property.
type CatalogEntry struct {
	Property string   `json:"property"`
	Values   []string `json:"values"`
}

// Catalog returns every property with its allowed values, in display order.
func Catalog() []CatalogEntry {
	styles := make([]string, 0, len(Styles))
	for _, id := range StyleIDs() {
		styles = append(styles, strconv.Itoa(id)+" ("+Styles[id]+")")
	}
	return []CatalogEntry{
		{"occasion", Occasions},
		{"style", styles},
		{"book_size", BookSizes},
		{"cover_type", CoverTypes},
		{"page_type", PageTypes},
		{"image_density", ImageDensities},
		{"image_filtering_level", ImageFilteringLevels},
		{"embellishment_level", EmbellishmentLevels},
		{"text_sticker_level", TextStickerLevels},
	}
}

func checkValue(property, value string, allowed []string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("%w: %s %q (allowed: %s)", ErrInvalidProperty, property, value, strings.Join(allowed, ", "))
}

package design

import (
	"fmt"
	"strings"

	"github.com/56kcloud/mb-client/internal/engine"
)

// Properties are the presentation settings of a design request.
type Properties struct {
	Title               string
	Occasion            string
	Style               int
	BookSize            string
	CoverType           string
	PageType            string
	ImageDensity        string
	ImageFilteringLevel string
	EmbellishmentLevel  string
	TextStickerLevel    string
}

// DefaultProperties returns the first catalog value of every property.
func DefaultProperties() Properties {
	return Properties{
		Occasion:            Occasions[0],
		Style:               StyleIDs()[0],
		BookSize:            BookSizes[0],
		CoverType:           CoverTypes[0],
		PageType:            PageTypes[0],
		ImageDensity:        ImageDensities[0],
		ImageFilteringLevel: ImageFilteringLevels[0],
		EmbellishmentLevel:  EmbellishmentLevels[0],
		TextStickerLevel:    TextStickerLevels[0],
	}
}

// Validate checks every property against the catalog.
func (p Properties) Validate() error {
	if _, ok := Styles[p.Style]; !ok {
		return fmt.Errorf("%w: style %d", ErrInvalidProperty, p.Style)
	}
	checks := []struct {
		name    string
		value   string
		allowed []string
	}{
		{"occasion", p.Occasion, Occasions},
		{"book_size", p.BookSize, BookSizes},
		{"cover_type", p.CoverType, CoverTypes},
		{"page_type", p.PageType, PageTypes},
		{"image_density", p.ImageDensity, ImageDensities},
		{"image_filtering_level", p.ImageFilteringLevel, ImageFilteringLevels},
		{"embellishment_level", p.EmbellishmentLevel, EmbellishmentLevels},
		{"text_sticker_level", p.TextStickerLevel, TextStickerLevels},
	}
	for _, check := range checks {
		if err := checkValue(check.name, check.value, check.allowed); err != nil {
			return err
		}
	}
	return nil
}

// Edits carries caller-supplied property changes. Nil fields are left as is.
type Edits struct {
	Title               *string
	Occasion            *string
	Style               *int
	BookSize            *string
	CoverType           *string
	PageType            *string
	ImageDensity        *string
	ImageFilteringLevel *string
	EmbellishmentLevel  *string
	TextStickerLevel    *string
}

// Empty reports whether e changes nothing.
func (e Edits) Empty() bool {
	return e == Edits{}
}

// Apply merges e into p and returns the result.
func (p Properties) Apply(e Edits) Properties {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	setString(&p.Title, e.Title)
	setString(&p.Occasion, e.Occasion)
	setString(&p.BookSize, e.BookSize)
	setString(&p.CoverType, e.CoverType)
	setString(&p.PageType, e.PageType)
	setString(&p.ImageDensity, e.ImageDensity)
	setString(&p.ImageFilteringLevel, e.ImageFilteringLevel)
	setString(&p.EmbellishmentLevel, e.EmbellishmentLevel)
	setString(&p.TextStickerLevel, e.TextStickerLevel)
	if e.Style != nil {
		p.Style = *e.Style
	}
	return p
}

func (p Properties) wire() *engine.BookDesignRequest {
	return &engine.BookDesignRequest{
		Occasion:            p.Occasion,
		Style:               p.Style,
		BookSize:            p.BookSize,
		CoverType:           p.CoverType,
		PageType:            p.PageType,
		ImageDensity:        p.ImageDensity,
		ImageFilteringLevel: p.ImageFilteringLevel,
		EmbellishmentLevel:  p.EmbellishmentLevel,
		TextStickerLevel:    p.TextStickerLevel,
	}
}

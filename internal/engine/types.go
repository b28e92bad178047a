package engine

import "encoding/json"

// BookDesignRequest is the design_request block of a book payload.
type BookDesignRequest struct {
	Occasion            string `json:"occasion"`
	Style               int    `json:"style"`
	BookSize            string `json:"book_size"`
	CoverType           string `json:"cover_type"`
	PageType            string `json:"page_type"`
	ImageDensity        string `json:"image_density"`
	ImageFilteringLevel string `json:"image_filtering_level"`
	EmbellishmentLevel  string `json:"embellishment_level"`
	TextStickerLevel    string `json:"text_sticker_level"`
}

// Book is the engine's book resource.
type Book struct {
	ID            string             `json:"id,omitempty"`
	Title         string             `json:"title,omitempty"`
	DesignRequest *BookDesignRequest `json:"design_request,omitempty"`
	GUID          string             `json:"guid,omitempty"`
	State         string             `json:"state,omitempty"`
}

// Image is a photo attached to a book.
type Image struct {
	Handle      string `json:"handle"`
	URL         string `json:"url"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Rotation    int    `json:"rotation"`
	CaptureTime string `json:"capture_time,omitempty"`
	CameraMake  string `json:"camera_make,omitempty"`
	CameraModel string `json:"camera_model,omitempty"`
	Filename    string `json:"filename,omitempty"`
}

// DensityOption bounds the book produced for one image density.
type DensityOption struct {
	MinPageCount  int     `json:"min_page_count"`
	MaxPageCount  int     `json:"max_page_count"`
	MinImageCount int     `json:"min_image_count"`
	MaxImageCount int     `json:"max_image_count"`
	AvgImageCount float64 `json:"avg_image_count"`
}

// DesignOptions lists what the engine can build for a size, image count and
// filtering level, keyed by image density.
type DesignOptions struct {
	Densities map[string]DensityOption `json:"densities"`
}

// Galleon is the final book layout document, kept verbatim.
type Galleon = json.RawMessage

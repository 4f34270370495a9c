package pipeline

// MissingReason classifies why a month x indicator pair produced no raster.
type MissingReason string

const (
	// ReasonNoItems: the catalog returned zero scenes.
	ReasonNoItems MissingReason = "no_items"
	// ReasonNoValidPixels: masking removed every pixel of the composite.
	ReasonNoValidPixels MissingReason = "no_valid_pixels"
	// ReasonProcessError: search, compute or export kept failing.
	ReasonProcessError MissingReason = "process_error"
	// ReasonUploadError: the release upload failed.
	ReasonUploadError MissingReason = "upload_error"
)

// MissingRecord is one entry of missing.json.
type MissingRecord struct {
	Year      int           `json:"year"`
	Month     int           `json:"month"`
	Indicator string        `json:"indicator"`
	Reason    MissingReason `json:"reason"`
}

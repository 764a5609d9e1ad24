package domain

import "time"

// VillageInfo is the structured record a user submits at the INITIAL stage.
type VillageInfo struct {
	Name       string `json:"name"`
	Location   string `json:"location"`
	Industry   string `json:"industry,omitempty"`
	History    string `json:"history,omitempty"`
	CustomInfo string `json:"custom_info,omitempty"`

	// ModificationRequest carries redo feedback into a re-analysis.
	// It is never part of the submitted payload.
	ModificationRequest string `json:"-"`
}

// CultureAnalysis is the Cultural Analyst's report, slot owner: CULTURE.
type CultureAnalysis struct {
	Report      string    `json:"report"`
	DataSources []string  `json:"data_sources,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// DesignSchema is the Creative Designer's output, slot owner: DESIGN.
// Options holds the three labeled design variants as one markdown document.
type DesignSchema struct {
	Options     string    `json:"options"`
	NumOptions  int       `json:"num_options"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ImageInfo is one generated image: the URL it is served under and where it
// landed on disk. LocalPath is empty when the download failed and URL points
// at the provider's remote copy.
type ImageInfo struct {
	URL       string `json:"url"`
	LocalPath string `json:"local_path,omitempty"`
}

// ImageResult is the Image Generator's output, slot owner: IMAGE.
// IsMock marks a stand-in image returned because the provider was
// unavailable; mock results still count as success.
type ImageResult struct {
	Images      []ImageInfo `json:"images"`
	Prompt      string      `json:"prompt"`
	Style       string      `json:"style,omitempty"`
	IsMock      bool        `json:"is_mock"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// WorkflowData holds the four optional pipeline slots. Slots fill
// left-to-right with stage order; a redo may overwrite the slot owned by
// the current stage only.
type WorkflowData struct {
	VillageInfo     *VillageInfo     `json:"village_info,omitempty"`
	CultureAnalysis *CultureAnalysis `json:"culture_analysis,omitempty"`
	DesignSchema    *DesignSchema    `json:"design_schema,omitempty"`
	ImageResult     *ImageResult     `json:"image_result,omitempty"`
}

// Reset clears every slot.
func (d *WorkflowData) Reset() {
	d.VillageInfo = nil
	d.CultureAnalysis = nil
	d.DesignSchema = nil
	d.ImageResult = nil
}

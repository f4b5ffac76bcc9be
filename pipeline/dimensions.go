package pipeline

// Dimensions is an output image size in pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DefaultAspectRatio is used for unknown aspect ratio keys.
const DefaultAspectRatio = "1:1"

// AspectRatios maps the keys the front-end offers to render sizes.
var AspectRatios = map[string]Dimensions{
	"1:1":  {Width: 1024, Height: 1024},
	"16:9": {Width: 1344, Height: 768},
	"9:16": {Width: 768, Height: 1344},
	"4:3":  {Width: 1152, Height: 864},
}

// DimensionsFor returns the size for key, falling back to DefaultAspectRatio.
func DimensionsFor(key string) Dimensions {
	if d, ok := AspectRatios[key]; ok {
		return d
	}
	return AspectRatios[DefaultAspectRatio]
}

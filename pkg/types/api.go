package types

// FetchLoraRequest asks the service to download a LoRA weight file.
type FetchLoraRequest struct {
	// URL of the artifact on huggingface.co, civitai.com or replicate.delivery.
	// example: https://huggingface.co/org/model/resolve/main/lora.safetensors
	URL string `json:"url" example:"https://huggingface.co/org/model/resolve/main/lora.safetensors"`
}

// FetchLoraResponse reports the local filename of the fetched artifact.
type FetchLoraResponse struct {
	// Filename inside the loras directory (not a full path).
	// example: org_model_lora.safetensors
	Filename string `json:"filename" example:"org_model_lora.safetensors"`
}

// PredictionRequest configures one generation run.
type PredictionRequest struct {
	// Prompt text for the image.
	Prompt string `json:"prompt,omitempty" example:"a lighthouse at dusk"`
	// Things you do not want to see in your image.
	NegativePrompt string `json:"negative_prompt,omitempty" example:"text, watermark"`
	// Guidance scale, 0 to 5. Omitted defaults to 3.5; an explicit 0
	// is honored.
	// example: 3.5
	GuidanceScale *float64 `json:"guidance_scale,omitempty" example:"3.5"`
	// Number of sampler steps, 1 to 50.
	// example: 28
	Steps int `json:"steps,omitempty" example:"28"`
	// Type of control net: canny, soft_edge or depth.
	// example: depth
	ControlType string `json:"control_type,omitempty" example:"depth"`
	// Strength of the control net, 0 to 3. Canny works best with 0.5,
	// soft edge with 0.4, depth between 0.5 and 0.75. Omitted defaults
	// to 0.5; an explicit 0 is honored.
	// example: 0.5
	ControlStrength *float64 `json:"control_strength,omitempty" example:"0.5"`
	// Local path of the image to use with the control net.
	ControlImage string `json:"control_image" example:"/tmp/inputs/photo.png"`
	// Strength of image-to-image control, 0 to 1. 0 ignores the control
	// image content, 1 returns it as is.
	// example: 0
	ImageToImageStrength float64 `json:"image_to_image_strength,omitempty" example:"0"`
	// Preprocessor for the depth control net: Midas, Zoe, DepthAnything
	// or Zoe-DepthAnything.
	// example: DepthAnything
	DepthPreprocessor string `json:"depth_preprocessor,omitempty" example:"DepthAnything"`
	// Preprocessor for the soft edge control net: HED, TEED or PiDiNet.
	// example: HED
	SoftEdgePreprocessor string `json:"soft_edge_preprocessor,omitempty" example:"HED"`
	// Also return the preprocessed control image. Useful for debugging.
	ReturnPreprocessedImage bool `json:"return_preprocessed_image,omitempty" example:"false"`
	// Output format: png, jpg or webp (webp outputs pass through unconverted).
	// example: png
	OutputFormat string `json:"output_format,omitempty" example:"png"`
	// Output quality for lossy formats, 1 to 100.
	// example: 80
	OutputQuality int `json:"output_quality,omitempty" example:"80"`
	// Random seed; 0 or omitted picks one.
	// example: 42
	Seed int64 `json:"seed,omitempty" example:"42"`
}

// PredictionResponse lists the produced image files.
type PredictionResponse struct {
	// Paths of the generated images, in output order.
	Outputs []string `json:"outputs"`
	// Seed actually used for the run.
	Seed int64 `json:"seed"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

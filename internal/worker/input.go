package worker

import "genstudio/internal/domain"

// Kind defaults applied when the job and its template leave a parameter unset.
const (
	defaultImageAspect   = "1:1"
	defaultCardAspect    = "3:4"
	defaultVideoAspect   = "16:9"
	defaultVideoDuration = 5
	defaultVideoRes      = "720p"
	imageOutputFormat    = "png"
)

// mergeParams returns job params with unset fields taken from the template.
func mergeParams(job, tmpl domain.JobParams) domain.JobParams {
	out := job
	if out.DurationSeconds == 0 {
		out.DurationSeconds = tmpl.DurationSeconds
	}
	if out.Resolution == "" {
		out.Resolution = tmpl.Resolution
	}
	if out.AspectRatio == "" {
		out.AspectRatio = tmpl.AspectRatio
	}
	if out.GenerateAudio == nil {
		out.GenerateAudio = tmpl.GenerateAudio
	}
	if out.Seed == nil {
		out.Seed = tmpl.Seed
	}
	if out.NegativePrompt == "" {
		out.NegativePrompt = tmpl.NegativePrompt
	}
	return out
}

// buildInput renders the prediction input for kind.
func buildInput(kind domain.JobKind, prompt string, inputURLs []string, params domain.JobParams) map[string]any {
	input := map[string]any{"prompt": prompt}
	if params.Seed != nil {
		input["seed"] = *params.Seed
	}
	if params.NegativePrompt != "" {
		input["negative_prompt"] = domain.SanitizePrompt(params.NegativePrompt, domain.MaxUserPromptLength)
	}

	switch kind {
	case domain.JobKindVideo:
		input["aspect_ratio"] = orDefault(params.AspectRatio, defaultVideoAspect)
		input["resolution"] = orDefault(params.Resolution, defaultVideoRes)
		duration := params.DurationSeconds
		if duration <= 0 {
			duration = defaultVideoDuration
		}
		input["duration"] = duration
		audio := false
		if params.GenerateAudio != nil {
			audio = *params.GenerateAudio
		}
		input["generate_audio"] = audio
		if len(inputURLs) > 0 {
			input["image"] = inputURLs[0]
		}
		if len(inputURLs) > 1 {
			input["reference_images"] = inputURLs[1:]
		}
	case domain.JobKindCard:
		input["aspect_ratio"] = orDefault(params.AspectRatio, defaultCardAspect)
		input["output_format"] = imageOutputFormat
		if len(inputURLs) > 0 {
			input["image_input"] = inputURLs
		}
	default:
		input["aspect_ratio"] = orDefault(params.AspectRatio, defaultImageAspect)
		input["output_format"] = imageOutputFormat
		if len(inputURLs) > 0 {
			input["image_input"] = inputURLs
		}
	}
	return input
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

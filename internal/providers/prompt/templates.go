package prompt

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"server/internal/domain"
)

const imagePromptSystem = `You write prompts for an AI image editing model.
Given a brand analysis and the user's campaign notes, answer with exactly one
JSON object of this shape and nothing else:
{"image_prompt": string, "aspect_ratio_image": string}
The prompt must describe a single polished marketing hero shot that keeps the
product recognizable. Use the requested aspect ratio verbatim.`

const scenePromptSystem = `You write prompts for an AI video generation model.
Given a brand analysis and the user's campaign notes, answer with a JSON array
containing EXACTLY %d objects, each of this shape and nothing else:
{"video_prompt": string, "aspect_ratio_video": string, "model": string}
Each object describes one %d-second scene of a continuous promotional video.
Scenes must flow in order and keep the product and palette consistent. Use the
requested aspect ratio verbatim and "%s" as the model id.`

func buildBrief(analysis *domain.AnalysisResult, instructions, aspect string) string {
	var b strings.Builder
	title := cases.Title(language.Und)
	if analysis != nil {
		if analysis.Brand != "" {
			fmt.Fprintf(&b, "Brand: %s\n", title.String(analysis.Brand))
		}
		if analysis.Character != "" {
			fmt.Fprintf(&b, "Subject: %s\n", analysis.Character)
		}
		if len(analysis.Colors) > 0 {
			fmt.Fprintf(&b, "Palette: %s\n", strings.Join(analysis.Colors, ", "))
		}
		if analysis.Style != "" {
			fmt.Fprintf(&b, "Style: %s\n", analysis.Style)
		}
	}
	fmt.Fprintf(&b, "Campaign notes: %s\n", strings.TrimSpace(instructions))
	fmt.Fprintf(&b, "Aspect ratio: %s\n", aspect)
	return b.String()
}

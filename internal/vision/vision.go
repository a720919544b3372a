package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"brandlens/internal/analyzer"
	"brandlens/internal/llm"
	"brandlens/internal/model"
)

// minScreenshotBytes filters out blank or broken captures; anything smaller
// carries no usable visual signal.
const minScreenshotBytes = 10 * 1024

const maxImages = 5

// ErrNoUsableScreenshot means the vision keys cannot run for this scan.
var ErrNoUsableScreenshot = errors.New("no usable screenshot for visual analysis")

// Runner drives the two visual analysis keys on top of the shared analyzer
// pipeline.
type Runner struct {
	analyzer *analyzer.Analyzer
	log      *slog.Logger
}

func NewRunner(a *analyzer.Analyzer, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{analyzer: a, log: log}
}

// UsableImages converts screenshots into LLM attachments, dropping captures
// below the minimum size and capping the count.
func UsableImages(shots []*model.Screenshot) []llm.Image {
	var images []llm.Image
	for _, shot := range shots {
		if shot == nil || len(shot.Bytes) < minScreenshotBytes {
			continue
		}
		images = append(images, llm.Image{
			B64:  base64.StdEncoding.EncodeToString(shot.Bytes),
			MIME: shot.MIME,
		})
		if len(images) == maxImages {
			break
		}
	}
	return images
}

// BrandElements runs the visual identity analysis over the screenshots with a
// short text summary as grounding context.
func (r *Runner) BrandElements(ctx context.Context, scanID string, shots []*model.Screenshot, textContext, lang string) (model.AnalysisResult, error) {
	images := UsableImages(shots)
	if len(images) == 0 {
		return model.AnalysisResult{}, ErrNoUsableScreenshot
	}

	grounding := analyzer.TruncateSmart(textContext, 4000)
	return r.analyzer.Run(ctx, scanID, model.KeyBrandElements, grounding, lang, images)
}

// Alignment runs visual_text_alignment from the already-produced positioning
// themes and brand elements payloads. No screenshots are needed; the
// comparison is textual.
func (r *Runner) Alignment(ctx context.Context, scanID string, themes, elements json.RawMessage, lang string) (model.AnalysisResult, error) {
	input := FormatAlignmentInput(themes, elements)
	return r.analyzer.Run(ctx, scanID, model.KeyVisualTextAlignment, input, lang, nil)
}

// FormatAlignmentInput renders the top positioning themes and a compact brand
// elements summary as the alignment prompt's input block.
func FormatAlignmentInput(themes, elements json.RawMessage) string {
	var b strings.Builder

	b.WriteString("POSITIONING THEMES:\n")
	var parsedThemes struct {
		Themes []struct {
			Theme       string `json:"theme"`
			Description string `json:"description"`
			Confidence  int    `json:"confidence"`
		} `json:"themes"`
	}
	if err := json.Unmarshal(themes, &parsedThemes); err == nil {
		for i, th := range parsedThemes.Themes {
			if i == 3 {
				break
			}
			fmt.Fprintf(&b, "- %s (%d%%): %s\n", th.Theme, th.Confidence, th.Description)
		}
	}

	b.WriteString("\nVISUAL BRAND ELEMENTS:\n")
	var parsedElements struct {
		OverallImpression struct {
			Summary  string   `json:"summary"`
			Keywords []string `json:"keywords"`
		} `json:"overall_impression"`
		CoherenceScore int `json:"coherence_score"`
	}
	if err := json.Unmarshal(elements, &parsedElements); err == nil {
		fmt.Fprintf(&b, "- Impression: %s\n", parsedElements.OverallImpression.Summary)
		if len(parsedElements.OverallImpression.Keywords) > 0 {
			fmt.Fprintf(&b, "- Keywords: %s\n", strings.Join(parsedElements.OverallImpression.Keywords, ", "))
		}
		fmt.Fprintf(&b, "- Coherence: %d/5\n", parsedElements.CoherenceScore)
	}

	return b.String()
}

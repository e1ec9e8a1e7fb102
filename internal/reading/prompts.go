package reading

import (
	"fmt"
	"strings"

	"github.com/hazelvane/arcana/internal/model"
)

const promptPreamble = `You are a renowned tarot reader, spiritual guide, and manifestation coach
with deep knowledge of Western and esoteric traditions. Your style is
empathetic, practical, insightful, and tailored to the individual. Be
gentle, encouraging, and never fatalistic. Avoid medical, legal, or
financial advice. Write at least 400 words.`

// buildPrompt assembles the generation prompt for a category and subject.
func buildPrompt(category string, profile SubjectProfile) (string, error) {
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\n\nThe client has shared:\n")
	fmt.Fprintf(&b, "- Name: %s\n", profile.FullName)
	fmt.Fprintf(&b, "- Date of birth: %s\n", profile.BirthDate)
	if profile.BirthPlace != "" {
		fmt.Fprintf(&b, "- Place of birth: %s\n", profile.BirthPlace)
	}
	b.WriteString("\n")

	switch category {
	case model.CategoryHoroscope:
		sign, err := ZodiacSign(profile.BirthDate)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, `Their sun sign is %s. Write a personalized horoscope reading:
1. A short, warm introduction acknowledging their details.
2. What their sign and birth data reveal about current life themes,
   challenges, and hidden strengths.
3. A forecast for the next 1-3 months with practical opportunities.
4. A simple ritual or mantra they can use at home.
5. A positive, empowering closing.`, sign)

	case model.CategoryTarot:
		b.WriteString(`Perform a three-card tarot spread for them (past, present, future).
Name each card you draw, describe its imagery briefly, and interpret it
in the context of their details. Connect the three cards into one
narrative, then close with concrete guidance and an empowering message.`)

	case model.CategoryNumerology:
		lifePath, err := LifePathNumber(profile.BirthDate)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, `Their life path number is %d. Write a numerology reading:
1. A short introduction to what the life path number represents.
2. The strengths, lessons, and karmic themes of life path %d.
3. How the letters of their name resonate with this path.
4. Practical guidance for the months ahead.
5. A motivational closing reinforcing their influence over their path.`, lifePath, lifePath)

	default:
		return "", fmt.Errorf("unknown reading category %q", category)
	}

	return b.String(), nil
}

package report

import (
	"slices"

	"go.aimuz.me/ergowatch/internal/types"
)

type guidanceText struct {
	praise     types.Guidance
	corrective types.Guidance
}

var guidance = map[types.Category]guidanceText{
	types.CategoryNeck: {
		praise: types.Guidance{
			Title: "Balanced neck posture",
			Body:  "Your head stayed stacked over your shoulders for most of the session.",
		},
		corrective: types.Guidance{
			Title: "Bring your head back",
			Body:  "Your head drifted forward often, which loads the neck and upper back.",
			Rationale: []string{
				"Raise the monitor so its top edge sits at or slightly below eye level.",
				"Keep your ears in line with your shoulders and tuck the chin slightly.",
				"Support your lower back so the torso stays upright without effort.",
			},
		},
	},
	types.CategoryDistance: {
		praise: types.Guidance{
			Title: "Comfortable viewing distance",
			Body:  "You kept the screen at a comfortable distance throughout the session.",
		},
		corrective: types.Guidance{
			Title: "Adjust your screen distance",
			Body:  "The screen was often too close or too far, which strains the eyes.",
			Rationale: []string{
				"Place the screen about an arm's length (50 to 70 cm) away.",
				"Increase text size instead of leaning toward the screen.",
				"Move the keyboard with the screen so you do not reach forward.",
			},
		},
	},
	types.CategoryBlinking: {
		praise: types.Guidance{
			Title: "Healthy blink rate",
			Body:  "Your eyes looked well rested and your blink rate stayed normal.",
		},
		corrective: types.Guidance{
			Title: "Rest your eyes more often",
			Body:  "Low or heavy blinking points to dry or tired eyes.",
			Rationale: []string{
				"Every 20 minutes look at something 20 feet away for 20 seconds.",
				"Blink fully and on purpose when your eyes feel dry.",
				"Lower screen brightness and reduce glare from windows and lamps.",
			},
		},
	},
	types.CategoryFocus: {
		praise: types.Guidance{
			Title: "Steady focus",
			Body:  "You stayed engaged with your work for most of the session.",
		},
		corrective: types.Guidance{
			Title: "Protect your focus",
			Body:  "You were often distracted or drowsy during the session.",
			Rationale: []string{
				"Work in focused blocks with short breaks in between.",
				"Silence notifications while you work on demanding tasks.",
				"Stand up and move for a few minutes when you feel drowsy.",
			},
		},
	},
}

// GuidanceFor selects the guidance variant for a category score.
func GuidanceFor(c types.Category, score float64) types.Guidance {
	text := guidance[c]
	if score >= PraiseThreshold {
		g := text.praise
		g.Variant = types.GuidancePraise
		return g
	}
	g := text.corrective
	g.Variant = types.GuidanceCorrective
	g.Rationale = slices.Clone(g.Rationale)
	return g
}

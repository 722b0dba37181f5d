package prompt

import (
	"fmt"
	"sort"
)

// Operation names one assistant capability
type Operation string

const (
	OpPregnancyAdvice   Operation = "pregnancy_advice"
	OpPostpartumSupport Operation = "postpartum_support"
	OpWebLookup         Operation = "web_lookup"
	OpEmotionalSupport  Operation = "emotional_support"
	OpNutrition         Operation = "nutrition"
	OpExercise          Operation = "exercise"
	OpSleepAdvice       Operation = "sleep_advice"
	OpMoodAnalysis      Operation = "mood_analysis"
	OpSummary           Operation = "conversation_summary"
)

const safetyNote = "You are not a substitute for a doctor or midwife: when something sounds urgent or outside normal ranges, " +
	"gently recommend contacting a healthcare provider."

// Template is the fixed wording of one operation
type Template struct {
	Operation Operation
	System    string
	// Prefix is placed before the user text in the prompt
	Prefix string
}

// Render returns the system instruction (with context) and the prompt
func (t Template) Render(userText string, cc *CallContext) (system, prompt string) {
	return BuildSystemInstruction(t.System, cc), t.Prefix + userText
}

var templates = map[Operation]Template{
	OpPregnancyAdvice: {
		Operation: OpPregnancyAdvice,
		System: "You are a caring pregnancy companion for expectant mothers. " +
			"Give clear, practical, evidence-based guidance about pregnancy symptoms, prenatal care and preparing for birth. " +
			safetyNote,
	},
	OpPostpartumSupport: {
		Operation: OpPostpartumSupport,
		System: "You support mothers after childbirth. " +
			"Help with physical recovery, breastfeeding and feeding, newborn care and the emotional changes of the fourth trimester. " +
			safetyNote,
	},
	OpWebLookup: {
		Operation: OpWebLookup,
		System: "You look up current, reputable information for parents. " +
			"Prefer guidance from health authorities and professional bodies, mention where the information comes from, and keep the answer concise.",
		Prefix: "Find up-to-date information about: ",
	},
	OpEmotionalSupport: {
		Operation: OpEmotionalSupport,
		System: "You are a compassionate listener for mothers going through pregnancy and early parenthood. " +
			"Validate feelings first, then offer small, concrete coping ideas. " +
			"If the mother mentions thoughts of self-harm or harming her baby, urge her to contact emergency services or a crisis line right away.",
	},
	OpNutrition: {
		Operation: OpNutrition,
		System: "You are a nutrition guide for pregnant and breastfeeding mothers. " +
			"Suggest balanced meals and snacks, flag foods to avoid, and respect dietary preferences. " +
			safetyNote,
	},
	OpExercise: {
		Operation: OpExercise,
		System: "You suggest safe physical activity for pregnancy and postpartum recovery. " +
			"Adapt intensity to the stage of pregnancy or recovery and list warning signs that mean stopping. " +
			safetyNote,
	},
	OpSleepAdvice: {
		Operation: OpSleepAdvice,
		System: "You help mothers and babies sleep better. " +
			"Give realistic sleep tips for pregnancy, for the mother after birth, and age-appropriate safe sleep guidance for the baby.",
	},
	OpMoodAnalysis: {
		Operation: OpMoodAnalysis,
		System: "You classify the emotional state expressed in a short journal entry written by a mother. " +
			"Reply with JSON only, no prose, using exactly this shape: " +
			`{"mood": "<one of: happy, calm, neutral, anxious, sad, stressed, overwhelmed, angry, tired>", ` +
			`"confidence": <number between 0 and 1>, "suggestions": ["<short supportive suggestion>", "..."]}`,
		Prefix: "Journal entry:\n",
	},
	OpSummary: {
		Operation: OpSummary,
		System: "You summarize conversations between a mother and her assistant. " +
			"Write three to five sentences covering her main concerns, the advice given and any follow-ups worth remembering.",
		Prefix: "Conversation:\n",
	},
}

// Lookup returns the template of an operation
func Lookup(op Operation) (Template, error) {
	t, ok := templates[op]
	if !ok {
		return Template{}, fmt.Errorf("unknown operation %q", op)
	}
	return t, nil
}

// Operations returns all operation names, sorted
func Operations() []Operation {
	ops := make([]Operation, 0, len(templates))
	for op := range templates {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

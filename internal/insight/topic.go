package insight

import (
	"strings"
	"unicode"

	"github.com/onnwee/crowdpulse/internal/activity"
)

// Topic is the subject family detected from a session's title and description.
type Topic string

const (
	TopicAIML        Topic = "ai_ml"
	TopicTech        Topic = "tech"
	TopicBusiness    Topic = "business"
	TopicDesign      Topic = "design"
	TopicEducation   Topic = "education"
	TopicDataScience Topic = "data_science"
	TopicTechnical   Topic = "technical"
	TopicGeneral     Topic = "general"
)

// Phrases is the message text a topic contributes to insight slots.
// Every slot is non-empty for every topic.
type Phrases struct {
	Immediate     string
	Urgent        string
	Medium        string
	Success       string
	Participation string
	Engagement    string
	Momentum      string
	Reengage      string
	Checkpoint    string

	// DefaultActions fills the immediate recommendation list when nothing fired.
	DefaultActions []string
}

type family struct {
	topic    Topic
	keywords []string
}

// families are checked in order; the first with a matching keyword wins.
var families = []family{
	{TopicAIML, []string{
		"ai", "ml", "artificial intelligence", "machine learning", "deep learning",
		"neural", "neural network", "neural networks", "data science", "tensorflow",
		"pytorch", "sklearn", "scikit learn", "algorithm", "algorithms",
		"model", "models", "prediction", "predictions", "llm", "llms",
	}},
	{TopicTech, []string{"tech", "technology", "programming", "coding", "software", "development", "developer", "developers"}},
	{TopicBusiness, []string{"business", "marketing", "sales", "startup", "strategy"}},
	{TopicDesign, []string{"design", "creative", "art", "ux", "ui"}},
	{TopicEducation, []string{"education", "learning", "training", "course", "tutorial", "workshop", "teaching"}},
	{TopicDataScience, []string{"data", "analytics", "statistics", "visualization", "pandas", "numpy"}},
	{TopicTechnical, []string{"computer", "computing", "digital", "code", "cloud"}},
}

var phraseTables = map[Topic]Phrases{
	TopicAIML: {
		Immediate:     "Run a quick poll: Supervised vs Unsupervised learning, which fits this problem?",
		Urgent:        "Ask the room which model they would pick for a real dataset and why.",
		Medium:        "Pose a question about overfitting and how participants would detect it.",
		Success:       "The room is deep in the material. Consider a live model demo next.",
		Participation: "Ask everyone to share one place they have seen AI used this week.",
		Engagement:    "Poll: which matters more for this use case, accuracy or interpretability?",
		Momentum:      "Great energy. Challenge the group with a bias-in-training-data scenario.",
		Reengage:      "Drop a quick quiz on neural network basics to bring people back.",
		Checkpoint:    "Recap the key algorithms covered and open the floor for Q&A.",
		DefaultActions: []string{
			"Launch a poll comparing two model approaches",
			"Ask participants to predict the outcome of the next example",
		},
	},
	TopicTech: {
		Immediate:     "Poll the room on their preferred language or framework for this task.",
		Urgent:        "Ask participants to spot the bug in a short code snippet.",
		Medium:        "Ask what trade-offs they would weigh in the current design.",
		Success:       "Participants are locked in. Try a live coding exercise.",
		Participation: "Ask everyone to share the tool they use most for this kind of work.",
		Engagement:    "Poll: how would you structure this component?",
		Momentum:      "Keep it going with a quick architecture challenge.",
		Reengage:      "Drop a two-minute debugging puzzle to pull people back in.",
		Checkpoint:    "Summarize the concepts so far and take questions on implementation.",
		DefaultActions: []string{
			"Share a short code example and ask for feedback",
			"Poll participants on their experience level with the topic",
		},
	},
	TopicBusiness: {
		Immediate:     "Poll the room on the biggest challenge in their market right now.",
		Urgent:        "Ask participants how this idea would apply to their own organization.",
		Medium:        "Open a discussion on a recent case study related to the topic.",
		Success:       "Strong engagement. Consider a short breakout-style exercise.",
		Participation: "Ask everyone to share one metric they track closely.",
		Engagement:    "Poll: which strategy would you try first?",
		Momentum:      "Keep the energy up with a quick pricing or positioning scenario.",
		Reengage:      "Ask a provocative question about a common industry assumption.",
		Checkpoint:    "Recap the key takeaways and invite questions on applying them.",
		DefaultActions: []string{
			"Ask participants for a real-world example from their work",
			"Run a quick poll on strategic priorities",
		},
	},
	TopicDesign: {
		Immediate:     "Show two design options and poll the room on which works better.",
		Urgent:        "Ask participants to critique a quick example on screen.",
		Medium:        "Ask what they would change first in the current mockup.",
		Success:       "The room is engaged. Try a quick sketch-and-share round.",
		Participation: "Ask everyone to name a product whose design they admire.",
		Engagement:    "Poll: which principle matters most in this layout?",
		Momentum:      "Keep momentum with a rapid before-and-after challenge.",
		Reengage:      "Share a deliberately flawed design and ask for fixes.",
		Checkpoint:    "Recap the principles covered and take questions.",
		DefaultActions: []string{
			"Ask participants to vote on a design direction",
			"Invite feedback on a work-in-progress example",
		},
	},
	TopicEducation: {
		Immediate:     "Run a quick knowledge-check poll on the last concept.",
		Urgent:        "Ask a simple warm-up question everyone can answer.",
		Medium:        "Ask participants to explain the concept in their own words.",
		Success:       "Learners are highly engaged. Consider a short challenge problem.",
		Participation: "Ask everyone to rate their confidence with the material so far.",
		Engagement:    "Poll: which part of today's material is least clear?",
		Momentum:      "Build on the energy with a slightly harder follow-up question.",
		Reengage:      "Give a quick two-question quiz to refocus the group.",
		Checkpoint:    "Pause for a recap and an open Q&A round.",
		DefaultActions: []string{
			"Run a comprehension check poll",
			"Ask participants to share one thing they learned",
		},
	},
	TopicDataScience: {
		Immediate:     "Show a chart and poll the room on what it tells them.",
		Urgent:        "Ask participants to spot the misleading part of a visualization.",
		Medium:        "Ask how they would clean a messy sample dataset.",
		Success:       "The room is engaged. Try a live analysis walkthrough.",
		Participation: "Ask everyone which tool they use for analysis day to day.",
		Engagement:    "Poll: mean or median for this distribution?",
		Momentum:      "Keep going with a quick correlation versus causation puzzle.",
		Reengage:      "Share a surprising statistic and ask for explanations.",
		Checkpoint:    "Recap the analysis steps so far and take questions.",
		DefaultActions: []string{
			"Poll participants on interpreting a chart",
			"Ask for hypotheses before revealing the next result",
		},
	},
	TopicTechnical: {
		Immediate:     "Poll the room on how they would approach the current problem.",
		Urgent:        "Ask a quick hands-on question tied to the last example.",
		Medium:        "Ask participants to compare two approaches shown so far.",
		Success:       "Great engagement. Consider a short practical exercise.",
		Participation: "Ask everyone to share their setup or tooling.",
		Engagement:    "Poll: which option would you choose in production?",
		Momentum:      "Keep it moving with a quick troubleshooting scenario.",
		Reengage:      "Pose a short puzzle based on the material.",
		Checkpoint:    "Recap the technical points and open the floor for questions.",
		DefaultActions: []string{
			"Walk through a practical example and ask for input",
			"Poll participants on their preferred approach",
		},
	},
	TopicGeneral: {
		Immediate:     "Launch a quick poll to get everyone involved.",
		Urgent:        "Ask an open question and invite quick answers in chat.",
		Medium:        "Ask participants to share their thoughts on the current topic.",
		Success:       "Fantastic engagement. Keep doing what you're doing.",
		Participation: "Ask everyone a simple question they can answer in one word.",
		Engagement:    "Ask a simple yes or no question to get quick reactions.",
		Momentum:      "Keep the energy going with another interactive activity.",
		Reengage:      "Try a fun poll or icebreaker to re-energize the room.",
		Checkpoint:    "Take a moment to recap and invite questions.",
		DefaultActions: []string{
			"Maintain current engagement momentum",
			"Consider introducing new discussion topics",
		},
	},
}

// DetectTopic picks the topic family from session metadata.
// Nil or empty metadata yields TopicGeneral.
func DetectTopic(meta *activity.SessionMetadata) Topic {
	if meta == nil {
		return TopicGeneral
	}
	tokens := tokenize(meta.Title + " " + meta.Description)
	if len(tokens) == 0 {
		return TopicGeneral
	}
	for _, f := range families {
		for _, kw := range f.keywords {
			if containsPhrase(tokens, strings.Fields(kw)) {
				return f.topic
			}
		}
	}
	return TopicGeneral
}

// PhrasesFor returns the phrase table for a topic, falling back to general.
func PhrasesFor(t Topic) Phrases {
	if p, ok := phraseTables[t]; ok {
		return p
	}
	return phraseTables[TopicGeneral]
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsPhrase(tokens, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return false
	}
outer:
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		for j, w := range phrase {
			if tokens[i+j] != w {
				continue outer
			}
		}
		return true
	}
	return false
}

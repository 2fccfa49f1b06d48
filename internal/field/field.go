// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package field estimates the academic field of a query from weighted
// keyword sets. The result calibrates the initial quality threshold and
// nothing else.
package field

import (
	"sort"
	"strings"
	"unicode"
)

// Field is a coarse academic-domain classification.
type Field string

const (
	Biomedical        Field = "biomedical"
	PhysicalSciences  Field = "physical_sciences"
	ComputerScience   Field = "computer_science"
	Engineering       Field = "engineering"
	SocialSciences    Field = "social_sciences"
	Humanities        Field = "humanities"
	Interdisciplinary Field = "interdisciplinary"
)

// MinConfidence is the floor below which classification falls back to
// Interdisciplinary. Deliberately low: a single strong domain keyword
// ("quantum", "immunotherapy") should be decisive without corroboration.
const MinConfidence = 0.35

// Classification is the classifier output. Classify always returns a value;
// zero keyword matches yield Interdisciplinary with zero confidence.
type Classification struct {
	Field           Field
	Confidence      float64
	MatchedKeywords []string
}

// keyword specificity: 1.0 marks terms that are unambiguous for the field,
// lower values are shared or weakly indicative vocabulary.
var fieldKeywords = map[Field]map[string]float64{
	Biomedical: {
		"immunotherapy": 1.0, "oncology": 1.0, "pathology": 1.0,
		"pharmacology": 1.0, "genomics": 1.0, "epidemiology": 1.0,
		"cancer": 0.9, "tumor": 0.9, "clinical": 0.7, "trial": 0.6,
		"trials": 0.6, "disease": 0.6, "patient": 0.6, "patients": 0.6,
		"therapy": 0.6, "drug": 0.6, "gene": 0.6, "protein": 0.6,
		"vaccine": 0.8, "diagnosis": 0.7, "treatment": 0.6, "medical": 0.6,
		"biomarker": 0.9, "metabolism": 0.7, "immune": 0.8, "antibody": 0.9,
	},
	PhysicalSciences: {
		"quantum": 1.0, "photonics": 1.0, "superconductivity": 1.0,
		"spectroscopy": 1.0, "cosmology": 1.0, "plasma": 0.8,
		"particle": 0.7, "relativity": 0.9, "magnetism": 0.8,
		"thermodynamics": 0.8, "entanglement": 0.9, "photon": 0.9,
		"laser": 0.7, "crystalline": 0.8, "astrophysics": 1.0,
		"gravitational": 0.8, "semiconductor": 0.7, "optics": 0.8,
	},
	ComputerScience: {
		"algorithm": 0.8, "algorithms": 0.8, "compiler": 0.9,
		"cryptography": 0.9, "blockchain": 0.8, "database": 0.7,
		"distributed": 0.6, "learning": 0.5, "neural": 0.7,
		"transformer": 0.7, "reinforcement": 0.7, "software": 0.6,
		"computing": 0.6, "network": 0.5, "compilers": 0.9,
		"kernel": 0.6, "concurrency": 0.8, "scheduling": 0.6,
	},
	Engineering: {
		"turbine": 0.9, "aerodynamics": 0.9, "robotics": 0.8,
		"manufacturing": 0.7, "structural": 0.6, "mechatronics": 1.0,
		"propulsion": 0.9, "actuator": 0.8, "photovoltaic": 0.8,
		"corrosion": 0.8, "tribology": 1.0, "welding": 0.8,
	},
	SocialSciences: {
		"sociology": 1.0, "psychology": 0.9, "economics": 0.9,
		"behavioral": 0.7, "survey": 0.5, "demographic": 0.7,
		"policy": 0.6, "education": 0.6, "political": 0.7,
		"ethnography": 1.0, "inequality": 0.7, "migration": 0.6,
		"cognition": 0.7, "socioeconomic": 0.8,
	},
	Humanities: {
		"philosophy": 0.9, "literature": 0.7, "historiography": 1.0,
		"linguistics": 0.9, "theology": 1.0, "aesthetics": 0.8,
		"hermeneutics": 1.0, "medieval": 0.8, "rhetoric": 0.8,
		"archaeology": 0.9, "ethics": 0.6, "narrative": 0.6,
	},
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"in": true, "on": true, "for": true, "to": true, "with": true, "by": true,
	"from": true, "as": true, "is": true, "are": true, "at": true, "how": true,
	"what": true, "does": true, "do": true, "its": true, "their": true,
}

// Classify matches query tokens against the per-field keyword sets and
// returns the best field with its confidence. Confidence is the sum of
// matched keyword specificities over the distinct non-stopword token count,
// capped at 1.
func Classify(query string) Classification {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return Classification{Field: Interdisciplinary}
	}

	best := Classification{Field: Interdisciplinary}
	// Deterministic tie-breaking: iterate fields in a fixed order.
	fields := make([]Field, 0, len(fieldKeywords))
	for f := range fieldKeywords {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })

	for _, f := range fields {
		keywords := fieldKeywords[f]
		var sum float64
		var matched []string
		for _, tok := range tokens {
			if spec, ok := keywords[tok]; ok {
				sum += spec
				matched = append(matched, tok)
			}
		}
		conf := sum / float64(len(tokens))
		if conf > 1 {
			conf = 1
		}
		if conf > best.Confidence {
			best = Classification{Field: f, Confidence: conf, MatchedKeywords: matched}
		}
	}

	if best.Confidence < MinConfidence {
		return Classification{
			Field:           Interdisciplinary,
			Confidence:      best.Confidence,
			MatchedKeywords: best.MatchedKeywords,
		}
	}
	return best
}

// tokenize lowercases the query, splits on non-alphanumeric runes, drops
// stopwords, and returns distinct tokens.
func tokenize(s string) []string {
	raw := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(raw))
	var out []string
	for _, tok := range raw {
		if len(tok) < 2 || stopwords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

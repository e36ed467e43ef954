// Package domain contains the core entities of the neurological differential
// diagnosis service: examination findings, diseases with their likelihood-ratio
// evidence tables, and the ranked result of a diagnosis computation.
//
// Posterior probabilities are computed with sequential Bayesian updating from a
// fixed prior; see package service for the engine itself.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// FindingType classifies an examination finding by exam section.
// The set is closed; values outside it are rejected at input boundaries.
type FindingType string

const (
	MOTOR         FindingType = "motor"
	SENSORY       FindingType = "sensory"
	RED_FLAG      FindingType = "redFlag"
	CRANIAL_NERVE FindingType = "cranialNerve"
	REFLEX        FindingType = "reflex"
	COORDINATION  FindingType = "coordination"
	SPECIAL_TEST  FindingType = "special_test"
	COGNITIVE     FindingType = "cognitive"
)

// Laterality is the body side a finding refers to. The zero value means the
// finding has no side.
type Laterality string

const (
	LEFT          Laterality = "left"
	RIGHT         Laterality = "right"
	BILATERAL     Laterality = "bilateral"
	NO_LATERALITY Laterality = ""
)

// ConfidenceLevel is a coarse banding of the numeric diagnosis confidence.
type ConfidenceLevel string

const (
	HIGH   ConfidenceLevel = "High"
	MEDIUM ConfidenceLevel = "Medium"
	LOW    ConfidenceLevel = "Low"
)

// Confidence band lower bounds.
const (
	HighConfidenceThreshold   = 0.8
	MediumConfidenceThreshold = 0.5
)

var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidFindingType    = errors.New("invalid finding type")
	ErrInvalidLaterality     = errors.New("invalid laterality")
	ErrInvalidLikelihoodRate = errors.New("likelihood ratio must be positive")
)

// AllFindingTypes returns every finding type in exam order.
func AllFindingTypes() []FindingType {
	return []FindingType{MOTOR, SENSORY, RED_FLAG, CRANIAL_NERVE, REFLEX, COORDINATION, SPECIAL_TEST, COGNITIVE}
}

// IsValid reports whether t is one of the known finding types.
func (t FindingType) IsValid() bool {
	switch t {
	case MOTOR, SENSORY, RED_FLAG, CRANIAL_NERVE, REFLEX, COORDINATION, SPECIAL_TEST, COGNITIVE:
		return true
	default:
		return false
	}
}

// String returns the string representation of FindingType
func (t FindingType) String() string {
	return string(t)
}

// ParseFindingType converts s into a FindingType. Matching is case-insensitive
// so "cranialnerve" and "CRANIALNERVE" both resolve.
func ParseFindingType(s string) (FindingType, error) {
	for _, t := range AllFindingTypes() {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFindingType, s)
}

// IsValid reports whether l is a known side or empty.
func (l Laterality) IsValid() bool {
	switch l {
	case LEFT, RIGHT, BILATERAL, NO_LATERALITY:
		return true
	default:
		return false
	}
}

// String returns the string representation of Laterality
func (l Laterality) String() string {
	return string(l)
}

// ParseLaterality converts s into a Laterality; an empty string is NO_LATERALITY.
func ParseLaterality(s string) (Laterality, error) {
	l := Laterality(strings.ToLower(strings.TrimSpace(s)))
	if !l.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidLaterality, s)
	}
	return l, nil
}

// IsValid validates the confidence level
func (c ConfidenceLevel) IsValid() bool {
	switch c {
	case HIGH, MEDIUM, LOW:
		return true
	default:
		return false
	}
}

// String returns the string representation of ConfidenceLevel
func (c ConfidenceLevel) String() string {
	return string(c)
}

// ConfidenceLevelFor bands a numeric confidence in [0,1].
func ConfidenceLevelFor(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= HighConfidenceThreshold:
		return HIGH
	case confidence >= MediumConfidenceThreshold:
		return MEDIUM
	default:
		return LOW
	}
}

// Package presentation maps song state to what a listing should render.
package presentation

import "songforge/model"

// Affordance is the display treatment for a song in a listing.
type Affordance string

const (
	// AffordanceFailed is terminal; the user has to submit again.
	AffordanceFailed Affordance = "failed"
	// AffordanceNoCredits is terminal and shown differently from a render failure.
	AffordanceNoCredits Affordance = "no_credits"
	// AffordanceInProgress is a non-interactive progress indicator.
	AffordanceInProgress Affordance = "in_progress"
	// AffordancePlayable renders play controls.
	AffordancePlayable Affordance = "playable"
)

// AffordanceFor is total: any status it does not recognise, including "", is playable.
func AffordanceFor(status model.SongStatus) Affordance {
	switch status {
	case model.SongStatusFailed:
		return AffordanceFailed
	case model.SongStatusNoCredits, model.SongStatusNoCreditsLegacy:
		return AffordanceNoCredits
	case model.SongStatusQueued, model.SongStatusProcessing:
		return AffordanceInProgress
	default:
		return AffordancePlayable
	}
}

// Terminal reports whether no further worker progress is expected.
func (a Affordance) Terminal() bool {
	return a == AffordanceFailed || a == AffordanceNoCredits
}

// Package finder locates the like button on a watch page.
//
// The host markup changes without notice, so location runs a ranked list of
// independent matchers and confirms every hit with a disambiguation
// predicate before trusting it. Find is stateless and re-runnable; a page
// with no acceptable candidate is "not found yet", never an error.
package finder

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog/log"

	"github.com/amplifylabs/amplify-agent/internal/selectors"
)

// Page is the subset of the browser page the finder depends on.
type Page interface {
	Has(selector string) (bool, *rod.Element, error)
}

// Control is the subset of a located element the predicate depends on.
type Control interface {
	Attribute(name string) (*string, error)
}

// Candidate is one control located by a matcher, with the evidence that
// passed the disambiguation predicate.
type Candidate struct {
	Selector   string // Matcher that produced it
	Confidence int    // Matcher rank; 0 is highest confidence
	Label      string // Accessible label at match time
	element    *rod.Element
}

// Element returns the underlying page element.
func (c *Candidate) Element() *rod.Element {
	return c.element
}

// Find locates the like button, trying each matcher in rank order and
// returning the first candidate that passes the disambiguation predicate.
// Returns (nil, nil) when nothing on the current page qualifies; callers
// retry later.
func Find(page Page, sel *selectors.Selectors) (*Candidate, error) {
	for rank, selector := range sel.LikeButton {
		has, el, err := page.Has(selector)
		if err != nil {
			// A selector the page engine rejects is a pattern problem,
			// not a page problem; skip it and let the next matcher run.
			log.Debug().Err(err).Str("selector", selector).Msg("Matcher query failed")
			continue
		}
		if !has || el == nil {
			continue
		}

		label, hasToggle, err := describe(el, sel)
		if err != nil {
			log.Debug().Err(err).Str("selector", selector).Msg("Candidate attributes unreadable")
			continue
		}

		if !IsTarget(label, hasToggle, sel) {
			log.Debug().
				Str("selector", selector).
				Str("label", label).
				Bool("toggle", hasToggle).
				Msg("Candidate rejected by disambiguation predicate")
			continue
		}

		return &Candidate{
			Selector:   selector,
			Confidence: rank,
			Label:      label,
			element:    el,
		}, nil
	}

	return nil, nil
}

// IsTarget is the disambiguation predicate: the accessible label carries an
// affirmative term, does not carry its negated counterpart, and the element
// exposes a toggle state attribute. The toggle requirement excludes plain
// buttons that merely mention the word.
func IsTarget(label string, hasToggle bool, sel *selectors.Selectors) bool {
	if !hasToggle {
		return false
	}

	lower := strings.ToLower(label)

	for _, neg := range sel.NegativeTerms {
		if strings.Contains(lower, neg) {
			return false
		}
	}
	for _, aff := range sel.AffirmativeTerms {
		if strings.Contains(lower, aff) {
			return true
		}
	}
	return false
}

// describe reads the evidence the predicate needs off a control.
func describe(c Control, sel *selectors.Selectors) (label string, hasToggle bool, err error) {
	ariaLabel, err := c.Attribute("aria-label")
	if err != nil {
		return "", false, err
	}
	if ariaLabel != nil {
		label = *ariaLabel
	}

	toggle, err := c.Attribute(sel.ToggleAttribute)
	if err != nil {
		return "", false, err
	}
	return label, toggle != nil, nil
}

// Package selectors provides watch-page structural pattern loading and management.
package selectors

import (
	"embed"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed selectors.yaml
var defaultSelectorsFS embed.FS

// Selectors contains all structural patterns used against the watch page.
// LikeButton is a ranked matcher list; earlier entries carry higher confidence.
type Selectors struct {
	LikeButton          []string `yaml:"like_button"`
	AffirmativeTerms    []string `yaml:"affirmative_terms"`
	NegativeTerms       []string `yaml:"negative_terms"`
	ToggleAttribute     string   `yaml:"toggle_attribute"`
	AvatarContainerIDs  []string `yaml:"avatar_container_ids"`
	BylineContainers    []string `yaml:"byline_containers"`
	ChannelHrefPatterns []string `yaml:"channel_href_patterns"`
}

var (
	instance *Selectors
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Selectors instance.
// Patterns are loaded from the embedded selectors.yaml file.
func Get() *Selectors {
	once.Do(func() {
		instance, loadErr = load()
		if loadErr != nil {
			log.Error().Err(loadErr).Msg("Failed to load selectors, using defaults")
			instance = defaultSelectors()
		}
	})
	return instance
}

// load reads selectors from the embedded YAML file.
func load() (*Selectors, error) {
	data, err := defaultSelectorsFS.ReadFile("selectors.yaml")
	if err != nil {
		return nil, err
	}

	var s Selectors
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}

	log.Debug().
		Int("like_button_matchers", len(s.LikeButton)).
		Int("avatar_containers", len(s.AvatarContainerIDs)).
		Int("byline_containers", len(s.BylineContainers)).
		Msg("Selectors loaded")

	return &s, nil
}

// defaultSelectors returns hardcoded fallback patterns.
func defaultSelectors() *Selectors {
	return &Selectors{
		LikeButton: []string{
			`button[aria-label*="like this video" i]:not([aria-label*="dislike" i])`,
			`button[aria-label*="like" i][aria-label*="video" i]:not([aria-label*="dislike" i])`,
			`#segmented-like-button button`,
			`ytd-toggle-button-renderer:first-child button`,
			`#top-level-buttons-computed button:first-child`,
		},
		AffirmativeTerms:    []string{"like"},
		NegativeTerms:       []string{"dislike"},
		ToggleAttribute:     "aria-pressed",
		AvatarContainerIDs:  []string{"avatar", "owner"},
		BylineContainers:    []string{"ytd-video-owner-renderer", "ytd-channel-name"},
		ChannelHrefPatterns: []string{"/channel/", "/@"},
	}
}

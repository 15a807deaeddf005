// Package identity resolves the content owner of a watch page and checks
// whether they are registered to receive tips.
//
// Resolution runs against an HTML snapshot of the page, not the live DOM,
// so every heuristic is independently testable against fixture markup. Each
// method fails soft; only exhaustion of all methods yields no identity.
package identity

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/net/html"

	"github.com/amplifylabs/amplify-agent/internal/selectors"
	"github.com/amplifylabs/amplify-agent/internal/types"
)

// Bootstrap data markers embedded in the watch page.
var bootstrapMarkers = []string{
	"ytInitialPlayerResponse",
	"ytInitialData",
}

var (
	channelIDPattern   = regexp.MustCompile(`"channelId":"([^"]+)"`)
	canonicalIDPattern = regexp.MustCompile(`"channelId":"(UC[a-zA-Z0-9_-]+)"`)
	channelPathPattern = regexp.MustCompile(`/channel/([^/?#]+)`)
	handlePathPattern  = regexp.MustCompile(`/@([^/?#]+)`)
)

// Resolve extracts the owner identity from a watch page snapshot.
// Methods are tried in order: bootstrap page metadata, the owner avatar
// anchor, the owner byline anchor. Returns nil when every method fails.
func Resolve(pageHTML string, sel *selectors.Selectors) *types.Owner {
	if id := fromBootstrapData(pageHTML); id != "" {
		return &types.Owner{
			RawID:       id,
			CanonicalID: CanonicalID(pageHTML),
			Method:      types.ResolutionPageMetadata,
		}
	}

	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		log.Debug().Err(err).Msg("Watch page snapshot did not parse, identity unresolved")
		return nil
	}

	if id := fromAvatarAnchor(doc, sel); id != "" {
		return &types.Owner{
			RawID:       id,
			CanonicalID: CanonicalID(pageHTML),
			Method:      types.ResolutionAvatarLink,
		}
	}

	if id := fromBylineAnchor(doc, sel); id != "" {
		return &types.Owner{
			RawID:       id,
			CanonicalID: CanonicalID(pageHTML),
			Method:      types.ResolutionBylineLink,
		}
	}

	return nil
}

// CanonicalID extracts the strict UC-prefixed channel id from bootstrap
// data. Returns "" when the page does not expose one.
func CanonicalID(pageHTML string) string {
	for _, marker := range bootstrapMarkers {
		idx := strings.Index(pageHTML, marker)
		if idx < 0 {
			continue
		}
		if m := canonicalIDPattern.FindStringSubmatch(pageHTML[idx:]); m != nil {
			return m[1]
		}
	}
	// Bootstrap markers can be split across script tags; fall back to a
	// whole-document scan.
	if m := canonicalIDPattern.FindStringSubmatch(pageHTML); m != nil {
		return m[1]
	}
	return ""
}

// fromBootstrapData reads the channel id out of the embedded bootstrap JSON.
// The player response carries it at a stable path; a raw pattern scan covers
// pages where the blob could not be isolated.
func fromBootstrapData(pageHTML string) string {
	for _, marker := range bootstrapMarkers {
		blob := extractJSONBlob(pageHTML, marker)
		if blob == "" {
			continue
		}
		if id := gjson.Get(blob, "videoDetails.channelId").String(); id != "" {
			return id
		}
		if id := gjson.Get(blob, "microformat.playerMicroformatRenderer.externalChannelId").String(); id != "" {
			return id
		}
		if m := channelIDPattern.FindStringSubmatch(blob); m != nil {
			return m[1]
		}
	}
	if m := channelIDPattern.FindStringSubmatch(pageHTML); m != nil {
		return m[1]
	}
	return ""
}

// extractJSONBlob returns the JSON object assigned to the given marker
// variable, located by balancing braces with string awareness.
func extractJSONBlob(pageHTML, marker string) string {
	idx := strings.Index(pageHTML, marker)
	if idx < 0 {
		return ""
	}
	start := strings.Index(pageHTML[idx:], "{")
	if start < 0 {
		return ""
	}
	start += idx

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(pageHTML); i++ {
		c := pageHTML[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return pageHTML[start : i+1]
			}
		}
	}
	return ""
}

// fromAvatarAnchor finds a channel link inside the owner avatar container.
func fromAvatarAnchor(doc *html.Node, sel *selectors.Selectors) string {
	container := findByID(doc, sel.AvatarContainerIDs)
	if container == nil {
		return ""
	}
	return firstChannelID(container, sel.ChannelHrefPatterns)
}

// fromBylineAnchor finds a channel link inside the owner byline renderer.
func fromBylineAnchor(doc *html.Node, sel *selectors.Selectors) string {
	container := findByTag(doc, sel.BylineContainers)
	if container == nil {
		return ""
	}
	return firstChannelID(container, sel.ChannelHrefPatterns)
}

// firstChannelID walks a subtree and returns the owner id of the first
// anchor whose href matches a channel path pattern.
func firstChannelID(n *html.Node, patterns []string) string {
	var id string
	walk(n, func(node *html.Node) bool {
		if node.Type != html.ElementNode || node.Data != "a" {
			return true
		}
		href := attr(node, "href")
		if href == "" {
			return true
		}
		for _, p := range patterns {
			if !strings.Contains(href, p) {
				continue
			}
			if extracted := extractFromHref(href); extracted != "" {
				id = extracted
				return false
			}
		}
		return true
	})
	return id
}

// extractFromHref pulls the channel id or handle out of an anchor path.
func extractFromHref(href string) string {
	if m := channelPathPattern.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	if m := handlePathPattern.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	return ""
}

// findByID returns the first element whose id attribute matches any of ids.
func findByID(doc *html.Node, ids []string) *html.Node {
	var found *html.Node
	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		nodeID := attr(n, "id")
		for _, id := range ids {
			if nodeID == id {
				found = n
				return false
			}
		}
		return true
	})
	return found
}

// findByTag returns the first element whose tag name matches any of tags.
func findByTag(doc *html.Node, tags []string) *html.Node {
	var found *html.Node
	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		for _, tag := range tags {
			if n.Data == tag {
				found = n
				return false
			}
		}
		return true
	})
	return found
}

// walk visits nodes depth-first until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

// attr returns the value of the named attribute, or "".
func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// CreatorLookup is the backend operation the eligibility check depends on.
type CreatorLookup interface {
	Creator(ctx context.Context, channelID string) (*types.CreatorInfo, error)
}

// Resolver gates interception on backend eligibility.
type Resolver struct {
	backend CreatorLookup
}

// NewResolver creates an eligibility resolver backed by the given lookup.
func NewResolver(backend CreatorLookup) *Resolver {
	return &Resolver{backend: backend}
}

// Check queries the backend for the resolved owner. When the first lookup
// misses, it retries once with the canonical id - but only if that id
// differs from the one already tried. A nil result means "do not intercept"
// and is an expected outcome, never surfaced to the user.
func (r *Resolver) Check(ctx context.Context, owner *types.Owner) *types.CreatorInfo {
	if owner == nil || owner.ID() == "" {
		return nil
	}

	info, err := r.backend.Creator(ctx, owner.ID())
	if err != nil {
		log.Warn().Err(err).Str("channel_id", owner.ID()).Msg("Creator lookup failed, treating as not eligible")
		return nil
	}
	if info != nil {
		return info
	}

	// Fallback: the page-facing handle may not be what the creator
	// registered under; retry with the canonical id when it differs.
	canonical := owner.CanonicalID
	if canonical == "" || canonical == owner.ID() {
		log.Debug().Str("channel_id", owner.ID()).Msg("Creator not registered, no distinct canonical id to retry with")
		return nil
	}

	info, err = r.backend.Creator(ctx, canonical)
	if err != nil {
		log.Warn().Err(err).Str("channel_id", canonical).Msg("Canonical creator lookup failed, treating as not eligible")
		return nil
	}
	if info == nil {
		log.Debug().
			Str("channel_id", owner.ID()).
			Str("canonical_id", canonical).
			Msg("Creator not registered under either id")
	}
	return info
}

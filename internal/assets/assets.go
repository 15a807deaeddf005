// Package assets provides the embedded page-side scripts. Using Go's embed
// package allows for single-binary deployment without external file
// dependencies.
package assets

import "embed"

//go:embed js/*.js
var scripts embed.FS

func read(name string) string {
	data, err := scripts.ReadFile("js/" + name)
	if err != nil {
		// The embed directive guarantees the file exists; a miss here is
		// a build defect.
		panic("embedded script missing: " + name)
	}
	return string(data)
}

// ProviderScript is the wallet provider injected into the page context.
// It handles the namespaced wallet requests and posts responses on the
// page's broadcast channel.
func ProviderScript() string {
	return read("provider.js")
}

// RelayScript forwards every namespaced broadcast message to the agent's
// exposed binding.
func RelayScript() string {
	return read("relay.js")
}

// InterceptScript is evaluated on the like button element to swallow its
// clicks and notify the agent instead.
func InterceptScript() string {
	return read("intercept.js")
}

// OverlayScript installs the payment overlay renderer in the page.
func OverlayScript() string {
	return read("overlay.js")
}

package runtime

import "net/url"

// WatchVideoID extracts the video id from a watch page URL. The second
// return is false for anything that is not a watch page: the home feed,
// channel pages, search results, shorts.
func WatchVideoID(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	if u.Path != "/watch" {
		return "", false
	}
	id := u.Query().Get("v")
	if id == "" {
		return "", false
	}
	return id, true
}

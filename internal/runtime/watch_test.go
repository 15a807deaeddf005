package runtime

import "testing"

func TestWatchVideoID(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		wantID string
		wantOK bool
	}{
		{name: "watch page", url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", wantID: "dQw4w9WgXcQ", wantOK: true},
		{name: "watch with extra params", url: "https://www.youtube.com/watch?v=abc123&t=42s&list=PL1", wantID: "abc123", wantOK: true},
		{name: "home feed", url: "https://www.youtube.com/", wantOK: false},
		{name: "channel page", url: "https://www.youtube.com/@somecreator", wantOK: false},
		{name: "search results", url: "https://www.youtube.com/results?search_query=go", wantOK: false},
		{name: "shorts", url: "https://www.youtube.com/shorts/abc123", wantOK: false},
		{name: "watch without id", url: "https://www.youtube.com/watch", wantOK: false},
		{name: "garbage", url: "::not a url::", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := WatchVideoID(tt.url)
			if ok != tt.wantOK || id != tt.wantID {
				t.Errorf("WatchVideoID(%q) = (%q, %v), want (%q, %v)", tt.url, id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

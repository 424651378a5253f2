package api

import (
	"net/http"
)

// HandleStoryWebSocket joins the caller to the session named in the path.
func (h *Handler) HandleStoryWebSocket(w http.ResponseWriter, r *http.Request) {
	h.stories.ServeStory(w, r)
}

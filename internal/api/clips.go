package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ovoronkov/reelcut/internal/domain/captions"
)

func (s *Server) handleListClips(w http.ResponseWriter, r *http.Request) {
	sourceID := r.URL.Query().Get("source_id")
	clips, err := s.d.Registry.List(r.Context(), sourceID)
	if err != nil {
		s.log.Error().Err(err).Msg("listing clips failed")
		WriteError(w, http.StatusInternalServerError, "listing clips failed")
		return
	}

	out := make([]clipResponse, 0, len(clips))
	for _, c := range clips {
		out = append(out, toClipResponse(c))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"clips": out})
}

func (s *Server) handleGetClip(w http.ResponseWriter, r *http.Request) {
	clip, err := s.d.Registry.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toClipResponse(clip))
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"styles":  s.d.Styles.IDs(),
		"default": captions.DefaultStyleID,
	})
}

type statsResponse struct {
	Sources    int `json:"sources"`
	Clips      int `json:"clips"`
	Jobs       int `json:"jobs"`
	ActiveJobs int `json:"active_jobs"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.d.Registry.Stats(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("reading stats failed")
		WriteError(w, http.StatusInternalServerError, "reading stats failed")
		return
	}
	WriteJSON(w, http.StatusOK, statsResponse{
		Sources:    st.Sources,
		Clips:      st.Clips,
		Jobs:       st.Jobs,
		ActiveJobs: s.d.Jobs.ActiveJobs(),
	})
}

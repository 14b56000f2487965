package http

import (
	"net/http"

	"kincore/internal/core"
	"kincore/internal/levels"
)

// levelEntry is a level with what the selector needs to render it.
type levelEntry struct {
	core.Level
	Key     string `json:"key"`
	Icon    string `json:"icon"`
	Caption string `json:"caption"`
}

type levelsResponse struct {
	levels.State
	Directory []levelEntry `json:"directory"`
	Current   levelEntry   `json:"current"`
}

func entryOf(l core.Level) levelEntry {
	return levelEntry{Level: l, Key: l.Key(), Icon: l.Icon(), Caption: l.DisplayName()}
}

func levelsView(st levels.State) levelsResponse {
	resp := levelsResponse{
		State:     st,
		Directory: make([]levelEntry, 0, len(st.Directory)),
		Current:   entryOf(st.Current),
	}
	for _, l := range st.Directory {
		resp.Directory = append(resp.Directory, entryOf(l))
	}
	return resp
}

func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, levelsView(s.svc.Levels.State()))
}

// handleRefreshLevels waits for the refresh; failures keep the previous
// directory, so the response is always the current state.
func (s *Server) handleRefreshLevels(w http.ResponseWriter, r *http.Request) {
	s.svc.Levels.Refresh(r.Context())
	writeJSON(w, http.StatusOK, levelsView(s.svc.Levels.State()))
}

func (s *Server) handleSelectLevel(w http.ResponseWriter, r *http.Request) {
	var ref core.LevelRef
	if err := decodeJSON(r, &ref); err != nil {
		badRequest(w, msgInvalidBody)
		return
	}
	nav, err := s.svc.Levels.Select(r.Context(), ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nav)
}

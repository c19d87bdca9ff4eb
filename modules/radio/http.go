package radio

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/zachfi/personalradio/pkg/station"
)

// RegisterHandlers mounts the radio API on router.
func (r *Radio) RegisterHandlers(router *mux.Router) {
	s := router.PathPrefix("/radio").Subrouter()

	s.HandleFunc("/browse", r.browseHandler).Methods(http.MethodGet)
	s.HandleFunc("/browse/{provider}", r.browseProviderHandler).Methods(http.MethodGet)
	s.HandleFunc("/explode/{provider}/{channel}", r.explodeHandler).Methods(http.MethodGet)
	s.HandleFunc("/play/{provider}/{channel}", r.playHandler).Methods(http.MethodPost)
	s.HandleFunc("/stop", r.controlHandler(r.Stop)).Methods(http.MethodPost)
	s.HandleFunc("/pause", r.controlHandler(r.Pause)).Methods(http.MethodPost)
	s.HandleFunc("/resume", r.controlHandler(r.Resume)).Methods(http.MethodPost)
	s.HandleFunc("/state", r.stateHandler).Methods(http.MethodGet)
	s.HandleFunc("/notifications", r.notificationsHandler).Methods(http.MethodGet)
	s.HandleFunc("/schedule/kbs/{channel}", r.scheduleHandler).Methods(http.MethodGet)
}

type trackResponse struct {
	*station.Track
	Error string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, station.ErrUnknownChannel):
		status = http.StatusNotFound
	case errors.Is(err, ErrNotReady):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ErrNotPlaying):
		status = http.StatusConflict
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func logicalURI(req *http.Request) string {
	vars := mux.Vars(req)
	return vars["provider"] + "/" + vars["channel"]
}

func (r *Radio) browseHandler(w http.ResponseWriter, _ *http.Request) {
	if !r.ready() {
		writeError(w, ErrNotReady)
		return
	}

	type provider struct {
		Name     string `json:"name"`
		Title    string `json:"title"`
		URI      string `json:"uri"`
		AlbumArt string `json:"albumart"`
		Channels int    `json:"channels"`
	}

	providers := r.catalog.Providers()
	result := make([]provider, 0, len(providers))
	for _, p := range providers {
		result = append(result, provider{Name: p.Name, Title: p.Title, URI: p.URI, AlbumArt: p.Artwork, Channels: len(p.Channels)})
	}

	writeJSON(w, http.StatusOK, result)
}

func (r *Radio) browseProviderHandler(w http.ResponseWriter, req *http.Request) {
	if !r.ready() {
		writeError(w, ErrNotReady)
		return
	}

	p, ok := r.catalog.Provider(mux.Vars(req)["provider"])
	if !ok {
		writeError(w, station.ErrUnknownChannel)
		return
	}

	writeJSON(w, http.StatusOK, p.Channels)
}

// explodeHandler answers 200 with an empty playUri when the provider failed;
// the error field says why.
func (r *Radio) explodeHandler(w http.ResponseWriter, req *http.Request) {
	track, err := r.Explode(req.Context(), logicalURI(req))
	r.writeTrack(w, track, err)
}

func (r *Radio) playHandler(w http.ResponseWriter, req *http.Request) {
	track, err := r.Play(req.Context(), logicalURI(req))
	r.writeTrack(w, track, err)
}

func (r *Radio) writeTrack(w http.ResponseWriter, track *station.Track, err error) {
	if track == nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	resp := trackResponse{Track: track}
	if err != nil {
		resp.Error = err.Error()
	}
	// The track resolved, but a newer request owns the player.
	if errors.Is(err, ErrSuperseded) {
		status = http.StatusConflict
	}
	writeJSON(w, status, resp)
}

func (r *Radio) controlHandler(fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := fn(req.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, r.Playback())
	}
}

func (r *Radio) stateHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.Playback())
}

func (r *Radio) notificationsHandler(w http.ResponseWriter, _ *http.Request) {
	notices := r.Notices()
	if notices == nil {
		notices = []Notice{}
	}
	writeJSON(w, http.StatusOK, notices)
}

func (r *Radio) scheduleHandler(w http.ResponseWriter, req *http.Request) {
	index, err := strconv.Atoi(mux.Vars(req)["channel"])
	if err != nil {
		writeError(w, station.ErrUnknownChannel)
		return
	}

	title, programs, err := r.KBSSchedule(req.Context(), index)
	if err != nil {
		writeError(w, err)
		return
	}

	type entry struct {
		Code  string `json:"code"`
		Range string `json:"range"`
		Title string `json:"title"`
	}
	resp := struct {
		Title    string  `json:"title"`
		Programs []entry `json:"programs"`
	}{Title: title, Programs: make([]entry, 0, len(programs))}

	for _, p := range programs {
		resp.Programs = append(resp.Programs, entry{Code: p.Code, Range: p.Range(), Title: p.Title})
	}

	writeJSON(w, http.StatusOK, resp)
}

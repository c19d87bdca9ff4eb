package radio

import (
	"sync"
	"time"

	"github.com/zachfi/personalradio/pkg/schedule"
	"github.com/zachfi/personalradio/pkg/station"
)

const (
	StatusStop  = "stop"
	StatusPlay  = "play"
	StatusPause = "pause"
)

// Record is the host-visible playback state.
type Record struct {
	Status            string    `json:"status"`
	URI               string    `json:"uri,omitempty"`
	PlayURI           string    `json:"playUri,omitempty"`
	Provider          string    `json:"provider,omitempty"`
	Name              string    `json:"name,omitempty"`
	Title             string    `json:"title,omitempty"`
	ProgramTitle      string    `json:"programTitle,omitempty"`
	AlbumArt          string    `json:"albumart,omitempty"`
	Duration          int       `json:"duration"`
	Seek              int       `json:"seek"`
	DisableUIControls bool      `json:"disableUiControls"`
	Updated           time.Time `json:"updated"`
}

// PlaybackState is the shared state record. The schedule tracker publishes
// program changes into it.
type PlaybackState struct {
	mu  sync.RWMutex
	rec Record
	now func() time.Time
}

func NewPlaybackState() *PlaybackState {
	return &PlaybackState{rec: Record{Status: StatusStop}, now: time.Now}
}

// Load replaces the record with a freshly started track.
func (p *PlaybackState) Load(t *station.Track) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rec = Record{
		Status:            StatusPlay,
		URI:               t.URI,
		PlayURI:           t.PlayURI,
		Provider:          t.Provider,
		Name:              t.Name,
		Title:             t.Title,
		ProgramTitle:      t.ProgramTitle,
		AlbumArt:          t.AlbumArt,
		Duration:          t.Duration,
		DisableUIControls: t.DisableUIControls,
		Updated:           p.now(),
	}
	metricStatePushes.WithLabelValues("load").Inc()
}

func (p *PlaybackState) SetStatus(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rec.Status = status
	p.rec.Updated = p.now()
}

// Publish applies a tracker update. Every update restarts the seek position
// and locks the UI controls.
func (p *PlaybackState) Publish(u schedule.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch u.Kind {
	case schedule.ProgramChanged:
		p.rec.Name = u.Name
		p.rec.ProgramTitle = u.ProgramTitle
		if u.AlbumArt != "" {
			p.rec.AlbumArt = u.AlbumArt
		}
		p.rec.Duration = int(u.Duration / time.Second)
		metricStatePushes.WithLabelValues("program").Inc()
	case schedule.DurationReset:
		p.rec.Duration = 0
		metricStatePushes.WithLabelValues("reset").Inc()
	}

	p.rec.Seek = 0
	p.rec.DisableUIControls = true
	p.rec.Updated = p.now()
}

func (p *PlaybackState) Snapshot() Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rec
}

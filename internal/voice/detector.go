// Package voice spots emergency keywords in transcripts produced by an
// external speech recognizer.
package voice

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mr1hm/safety-concierge/internal/clock"
)

// DefaultKeywords are the phrases that raise a voice emergency.
var DefaultKeywords = []string{"help", "pain", "emergency", "hurt", "fall", "bleeding", "faint", "dizzy"}

// Detector receives transcripts and reports speech and keyword hits through
// its callbacks. It does not interpret the speech beyond substring matching.
type Detector struct {
	mu             sync.RWMutex
	clock          clock.Clock
	logger         *slog.Logger
	keywords       []string
	enabled        bool
	supported      bool
	lastTranscript string
	lastTime       time.Time

	// OnSpeech fires for every accepted transcript, before keyword matching.
	OnSpeech func(transcript string)
	// OnKeyword fires with the first configured keyword found in a transcript.
	OnKeyword func(keyword string)
}

// NewDetector builds a detector for keywords, or DefaultKeywords when none are
// given. A nil clock or logger falls back to the real clock and slog.Default.
func NewDetector(clk clock.Clock, logger *slog.Logger, keywords []string) *Detector {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	normalized := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			normalized = append(normalized, k)
		}
	}
	return &Detector{clock: clk, logger: logger, keywords: normalized}
}

// Attach marks a transcript source as available and enables detection.
func (d *Detector) Attach() {
	d.mu.Lock()
	d.supported = true
	d.enabled = true
	d.mu.Unlock()
}

func (d *Detector) SetEnabled(enabled bool) {
	d.mu.Lock()
	d.enabled = enabled
	d.mu.Unlock()
	d.logger.Info("voice detection toggled", "enabled", enabled)
}

func (d *Detector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// Supported reports whether a transcript source has been attached.
func (d *Detector) Supported() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.supported
}

func (d *Detector) Keywords() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.keywords...)
}

// LastTranscript returns the most recent accepted transcript and when it arrived.
func (d *Detector) LastTranscript() (string, time.Time) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastTranscript, d.lastTime
}

// Match returns the first configured keyword contained in transcript.
func (d *Detector) Match(transcript string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	lower := strings.ToLower(transcript)
	for _, k := range d.keywords {
		if strings.Contains(lower, k) {
			return k, true
		}
	}
	return "", false
}

// Handle processes one transcript. It returns the keyword it detected, if any.
// Transcripts are dropped while the detector is disabled.
func (d *Detector) Handle(transcript string) (string, bool) {
	d.mu.Lock()
	if !d.enabled {
		d.mu.Unlock()
		return "", false
	}
	d.lastTranscript = transcript
	d.lastTime = d.clock.Now()
	onSpeech, onKeyword := d.OnSpeech, d.OnKeyword
	d.mu.Unlock()

	if onSpeech != nil {
		onSpeech(transcript)
	}

	keyword, ok := d.Match(transcript)
	if !ok {
		return "", false
	}

	d.logger.Info("emergency keyword detected", "keyword", keyword)
	if onKeyword != nil {
		onKeyword(keyword)
	}
	return keyword, true
}

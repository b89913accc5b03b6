package trigger

import (
	"unicode/utf8"

	"github.com/mr1hm/safety-concierge/internal/models"
	"github.com/mr1hm/safety-concierge/internal/voice"
)

// DefaultSpeechMinLength is the transcript length in characters above which
// speech during an alert counts as the user confirming they are safe.
const DefaultSpeechMinLength = 10

// BindVoice wires detector callbacks to the machine. A detected keyword raises
// a voice emergency. Any transcript longer than minLength heard while the
// machine is in alert is taken as a spoken safety confirmation.
func BindVoice(d *voice.Detector, m Machine, minLength int) {
	if minLength <= 0 {
		minLength = DefaultSpeechMinLength
	}

	d.OnSpeech = func(transcript string) {
		if m.Status() == models.StatusAlert && utf8.RuneCountInString(transcript) > minLength {
			m.VerifySafe(models.VerifyVoice)
		}
	}
	d.OnKeyword = func(keyword string) {
		m.TriggerEmergency(models.TriggerVoice, keyword)
	}
}

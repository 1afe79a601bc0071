package console

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sefazor/ourphotos-kiosk/internal/notify"
)

type Tone struct {
	Frequency int           `json:"frequency_hz"`
	Duration  time.Duration `json:"duration"`
}

// Chime is the two-tone attention sound played for a fresh request.
var Chime = []Tone{
	{Frequency: 880, Duration: 150 * time.Millisecond},
	{Frequency: 1320, Duration: 200 * time.Millisecond},
}

// Alert is what the operator sees and hears when a request arrives.
type Alert struct {
	Chime []Tone `json:"chime"`
	Toast string `json:"toast"`
	Entry Entry  `json:"entry"`
}

type Alerter interface {
	Alert(a Alert)
}

func NewAlert(e Entry) Alert {
	return Alert{Chime: Chime, Toast: Toast(e), Entry: e}
}

// Toast names the requester so staff can find them at the station.
func Toast(e Entry) string {
	who := e.OwnerName
	if who == "" {
		who = "album " + e.Code
	}
	switch e.Type {
	case notify.TypePaymentRequest:
		return fmt.Sprintf("%s wants to pay for %d photo(s) (%s)", who, e.PhotoCount, e.Code)
	case notify.TypeBigScreenRequest:
		return fmt.Sprintf("%s wants to show %s on the big screen", who, e.Code)
	}
	return who
}

// LogAlerter is the headless alerter: the toast goes to the log.
type LogAlerter struct {
	log *zap.Logger
}

func NewLogAlerter(log *zap.Logger) *LogAlerter {
	return &LogAlerter{log: log}
}

func (a *LogAlerter) Alert(al Alert) {
	a.log.Info(al.Toast,
		zap.String("type", string(al.Entry.Type)),
		zap.String("code", al.Entry.Code),
		zap.Int("chime_tones", len(al.Chime)))
}

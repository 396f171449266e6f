package dispatch

import (
	"fmt"

	"github.com/user/centsalert/internal/availability"
	"github.com/user/centsalert/internal/storage"
)

const bookingURL = "https://testcisia.it/studenti_tolc/login_sso.php"

// BuildAlert composes the Telegram alert for an open slot, HTML
// formatted the way the dashboard bot has always sent it.
func BuildAlert(rec availability.Record) string {
	spots := "n/a"
	if rec.Capacity > 0 {
		spots = fmt.Sprintf("%d", rec.Capacity)
	}
	return fmt.Sprintf(
		"🟢 <b>CENT@CASA SPOT AVAILABLE!</b>\n\n"+
			"🏫 <b>%s</b>\n"+
			"📍 %s, %s\n"+
			"📅 Test: %s\n"+
			"⏰ Deadline: %s\n"+
			"🎫 Spots: %s\n\n"+
			"👉 <a href='%s'>BOOK NOW!</a>",
		rec.Institution, rec.City, rec.Region, rec.TestDate, rec.Deadline, spots, bookingURL,
	)
}

// BuildShortAlert composes the plain-text alert used for SMS and as the
// ledger payload for voice calls, where markup is not available and
// length matters.
func BuildShortAlert(rec availability.Record) string {
	return fmt.Sprintf(
		"CENT@CASA spot available at %s, %s. Test %s, deadline %s, %d spots. Book: %s",
		rec.Institution, rec.City, rec.TestDate, rec.Deadline, rec.Capacity, bookingURL,
	)
}

// messageFor picks the payload format for a channel.
func messageFor(ch storage.Channel, rec availability.Record) string {
	if ch == storage.ChannelTelegram {
		return BuildAlert(rec)
	}
	return BuildShortAlert(rec)
}

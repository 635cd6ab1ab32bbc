// Package eta formats bus arrival tables and the callback payloads attached
// to them. Fresh replies and refreshes share this code so both render the
// same way.
package eta

import (
	"encoding/json"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"

	"bus_eta_bot/internal/datamall"
	"bus_eta_bot/internal/domain"
)

const (
	serviceColumnWidth = 7
	minutesColumnWidth = 6
)

// Rendered is a formatted arrival reply. Options is nil when no service
// matched.
type Rendered struct {
	Text        string
	Options     domain.Options
	HasServices bool
}

// Header names the stop and, when set, the service filter.
func Header(busStop, service string) string {
	if service == "" {
		return "Etas for bus stop " + busStop
	}
	return fmt.Sprintf("Etas for service %s at bus stop %s", service, busStop)
}

// Render formats doc as an HTML table with Refresh and Done buttons. Minutes
// are counted from now.
func Render(busStop, service string, doc datamall.ArrivalDocument, now time.Time) (Rendered, error) {
	if len(doc.Services) == 0 {
		return Rendered{Text: domain.MsgNoServices}, nil
	}

	var table strings.Builder
	for _, svc := range doc.Services {
		table.WriteString(formatRow(svc, now))
		table.WriteByte('\n')
	}

	text := html.EscapeString(Header(busStop, service)) + "\n<pre>" + strings.TrimSpace(table.String()) + "</pre>"

	markup, err := Keyboard(busStop, service)
	if err != nil {
		return Rendered{}, err
	}

	return Rendered{
		Text: text,
		Options: domain.Options{
			domain.OptionParseMode:   string(models.ParseModeHTML),
			domain.OptionReplyMarkup: markup,
		},
		HasServices: true,
	}, nil
}

// Keyboard returns the JSON-encoded Refresh/Done inline keyboard.
func Keyboard(busStop, service string) (string, error) {
	refresh, err := RefreshPayload(busStop, service).Encode()
	if err != nil {
		return "", err
	}
	done, err := DonePayload().Encode()
	if err != nil {
		return "", err
	}

	markup := models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "Refresh", CallbackData: refresh}},
			{{Text: "Done", CallbackData: done}},
		},
	}

	data, err := json.Marshal(markup)
	if err != nil {
		return "", fmt.Errorf("encode keyboard: %w", err)
	}
	return string(data), nil
}

func formatRow(svc datamall.ServiceArrival, now time.Time) string {
	next := domain.MsgNotInOperation
	var subsequent, third string
	if svc.InOperation() {
		next = Minutes(svc.NextBus.EstimatedArrival, now)
		subsequent = Minutes(svc.SubsequentBus.EstimatedArrival, now)
		third = Minutes(svc.SubsequentBus3.EstimatedArrival, now)
	}

	// The label overflows its cell; the two blank cells still follow.
	return padRight(html.EscapeString(svc.ServiceNo), serviceColumnWidth) +
		padLeft(next, minutesColumnWidth) +
		padLeft(subsequent, minutesColumnWidth) +
		padLeft(third, minutesColumnWidth)
}

// Minutes returns the whole minutes from now until estimate, rounded down.
// Empty or unparseable estimates yield an empty string.
func Minutes(estimate string, now time.Time) string {
	if estimate == "" {
		return ""
	}

	arrival, err := time.Parse(time.RFC3339, estimate)
	if err != nil {
		return ""
	}

	delta := arrival.Sub(now)
	minutes := int64(delta / time.Minute)
	if delta%time.Minute < 0 {
		minutes--
	}
	return strconv.FormatInt(minutes, 10)
}

func padRight(s string, width int) string {
	if n := len([]rune(s)); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func padLeft(s string, width int) string {
	if n := len([]rune(s)); n < width {
		return strings.Repeat(" ", width-n) + s
	}
	return s
}

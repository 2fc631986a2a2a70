package bot

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// GenerateCalendarKeyboard builds the date-selection keyboard for one month.
// prices maps YYYY-MM-DD to a nightly price; dates without a cached price
// are rendered unselectable rather than blocking on the network. checkIn and
// checkOut mark the selected range when set.
func GenerateCalendarKeyboard(month time.Time, prices map[string]int64, checkIn, checkOut time.Time) tgbotapi.InlineKeyboardMarkup {
	year, m := month.Year(), int(month.Month())
	firstDay := time.Date(year, time.Month(m), 1, 0, 0, 0, 0, time.UTC)
	weekdayOffset := int(firstDay.Weekday())
	if weekdayOffset == 0 {
		weekdayOffset = 7 // Monday-first grid
	}
	daysInMonth := firstDay.AddDate(0, 1, -1).Day()

	rows := make([][]tgbotapi.InlineKeyboardButton, 0)

	// Month navigation header
	prev := firstDay.AddDate(0, -1, 0)
	next := firstDay.AddDate(0, 1, 0)
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("«", fmt.Sprintf("nav:%s", prev.Format("2006-01"))),
		tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%s %d", firstDay.Month(), year), "noop"),
		tgbotapi.NewInlineKeyboardButtonData("»", fmt.Sprintf("nav:%s", next.Format("2006-01"))),
	})

	// Weekday header
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("Mo", "noop"),
		tgbotapi.NewInlineKeyboardButtonData("Tu", "noop"),
		tgbotapi.NewInlineKeyboardButtonData("We", "noop"),
		tgbotapi.NewInlineKeyboardButtonData("Th", "noop"),
		tgbotapi.NewInlineKeyboardButtonData("Fr", "noop"),
		tgbotapi.NewInlineKeyboardButtonData("Sa", "noop"),
		tgbotapi.NewInlineKeyboardButtonData("Su", "noop"),
	})

	day := 1
	for day <= daysInMonth {
		row := make([]tgbotapi.InlineKeyboardButton, 0, 7)
		for col := 1; col <= 7; col++ {
			if len(rows) == 2 && col < weekdayOffset {
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(" ", "noop"))
				continue
			}
			if day > daysInMonth {
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(" ", "noop"))
				continue
			}
			date := time.Date(year, time.Month(m), day, 0, 0, 0, 0, time.UTC)
			dateStr := date.Format("2006-01-02")

			if _, priced := prices[dateStr]; !priced {
				row = append(row, tgbotapi.NewInlineKeyboardButtonData("·", "noop"))
				day++
				continue
			}

			label := fmt.Sprintf("%d", day)
			switch {
			case sameDay(date, checkIn) || sameDay(date, checkOut):
				label = fmt.Sprintf("·%d·", day)
			case inRange(date, checkIn, checkOut):
				label = fmt.Sprintf("‹%d›", day)
			}
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("date:%s", dateStr)))
			day++
		}
		rows = append(rows, row)
	}

	// Guest counters
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("− adult", "guests:adults:-"),
		tgbotapi.NewInlineKeyboardButtonData("+ adult", "guests:adults:+"),
		tgbotapi.NewInlineKeyboardButtonData("− child", "guests:children:-"),
		tgbotapi.NewInlineKeyboardButtonData("+ child", "guests:children:+"),
	})

	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("✅ Continue", "next"),
		tgbotapi.NewInlineKeyboardButtonData("✖ Close", "cancel"),
	})

	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func sameDay(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func inRange(d, start, end time.Time) bool {
	if start.IsZero() || end.IsZero() {
		return false
	}
	return d.After(start) && d.Before(end)
}

// GenerateRoomsKeyboard builds the room-selection keyboard, one room per
// row with its total for the stay when the backend supplied one.
func GenerateRoomsKeyboard(rooms []roomOption) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rooms)+1)
	for _, r := range rooms {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(r.Label, fmt.Sprintf("room:%d", r.ID)),
		))
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", "back"),
		tgbotapi.NewInlineKeyboardButtonData("✖ Close", "cancel"),
	})
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

type roomOption struct {
	ID    int64
	Label string
}

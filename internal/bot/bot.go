// Package bot is the Telegram surface of the booking flow: it renders the
// wizard screens as messages with inline keyboards and routes replies and
// callbacks into the wizard, pricing and payment packages.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"karibu/internal/metrics"
	"karibu/internal/payment"
	"karibu/internal/pricing"
	"karibu/internal/rentalapi"
	"karibu/internal/wizard"
)

// telegramClient is the subset of the Telegram API the bot uses.
type telegramClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// rentalAPI is the subset of the backend client the bot calls directly.
type rentalAPI interface {
	FetchRental(ctx context.Context, slug string) (*rentalapi.Rental, error)
	FetchAvailableRooms(ctx context.Context, slug, checkin, checkout string) ([]rentalapi.Room, error)
	FetchDailyPrices(ctx context.Context, roomID int64, startDate, endDate string) ([]rentalapi.DailyPrice, error)
}

// Config carries the bot's booking parameters.
type Config struct {
	RentalSlug string
	Currency   string
	AccountRef string
}

// Bot wires Telegram updates into the booking flow.
type Bot struct {
	tg         telegramClient
	api        rentalAPI
	wizard     *wizard.Wizard
	sessions   *wizard.SessionStore
	initiator  *payment.Initiator
	reconciler *payment.Reconciler
	logger     zerolog.Logger
	cfg        Config

	// runCtx bounds reconciliation runs to the bot's lifetime.
	runCtx context.Context

	runMu sync.Mutex
	runs  map[int64]*payment.Run

	// pendingStart holds a half-selected date range per chat; drafts holds
	// special request text typed on the summary screen. Both are touched only
	// by the update loop goroutine.
	pendingStart map[int64]time.Time
	drafts       map[int64]string

	// calendarRoomID is the room whose nightly prices back the calendar,
	// resolved lazily from the room listing.
	calendarRoomID int64

	// rental is the descriptor of the configured rental, fetched on the
	// first booking; its name heads the flow and its currency, when set,
	// overrides the configured one.
	rental *rentalapi.Rental
}

// NewBot creates the bot.
func NewBot(tg telegramClient, api rentalAPI, sessions *wizard.SessionStore, initiator *payment.Initiator, reconciler *payment.Reconciler, cfg Config, logger zerolog.Logger) *Bot {
	return &Bot{
		tg:           tg,
		api:          api,
		wizard:       wizard.New(),
		sessions:     sessions,
		initiator:    initiator,
		reconciler:   reconciler,
		logger:       logger,
		cfg:          cfg,
		runs:         make(map[int64]*payment.Run),
		pendingStart: make(map[int64]time.Time),
		drafts:       make(map[int64]string),
	}
}

// Start consumes updates until ctx is canceled.
func (b *Bot) Start(ctx context.Context) {
	b.runCtx = ctx

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.tg.GetUpdatesChan(u)

	b.logger.Info().Msg("bot started")
	for {
		select {
		case <-ctx.Done():
			b.tg.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	logger := b.logger.With().Str("request_id", uuid.NewString()).Logger()
	ctx = logger.WithContext(ctx)

	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	logger := zerolog.Ctx(ctx).With().Int64("chat_id", chatID).Logger()

	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "book":
			b.startBooking(ctx, chatID)
		case "cancel":
			b.closeBooking(chatID, "Booking closed. Send /book to start again.")
		case "help":
			b.send(tgbotapi.NewMessage(chatID,
				"Pick your dates on the calendar, choose a room and pay via M-Pesa.\n"+
					"/book — start a booking\n/cancel — abandon the current one"))
		default:
			b.send(tgbotapi.NewMessage(chatID, "Unknown command. Try /book."))
		}
		return
	}

	s := b.sessions.Get(chatID)
	if s == nil {
		b.send(tgbotapi.NewMessage(chatID, "Send /book to start a booking."))
		return
	}

	switch s.State {
	case wizard.StateCheckout:
		b.startPayment(ctx, chatID, s, msg.Text)
	case wizard.StateSummary:
		b.drafts[chatID] = strings.TrimSpace(msg.Text)
		b.send(tgbotapi.NewMessage(chatID, "Noted. Your request will be attached to the booking."))
	default:
		logger.Debug().Str("state", string(s.State)).Msg("ignoring free text")
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	data := cb.Data
	logger := zerolog.Ctx(ctx).With().Int64("chat_id", chatID).Str("data", data).Logger()

	// Ack immediately so the client stops its spinner.
	if _, err := b.tg.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		logger.Warn().Err(err).Msg("callback ack failed")
	}

	if data == "noop" {
		return
	}

	s := b.sessions.Get(chatID)
	if s == nil {
		b.send(tgbotapi.NewMessage(chatID, "This booking has expired. Send /book to start again."))
		return
	}

	switch {
	case data == "cancel":
		b.closeBooking(chatID, "Booking closed. Send /book to start again.")
	case data == "back":
		b.goBack(ctx, cb, s)
	case strings.HasPrefix(data, "nav:"):
		b.navigateMonth(ctx, cb, s, strings.TrimPrefix(data, "nav:"))
	case strings.HasPrefix(data, "date:"):
		b.selectDate(ctx, cb, s, strings.TrimPrefix(data, "date:"))
	case strings.HasPrefix(data, "guests:"):
		b.adjustGuests(ctx, cb, s, strings.TrimPrefix(data, "guests:"))
	case data == "next":
		b.showRooms(ctx, cb, s)
	case strings.HasPrefix(data, "room:"):
		b.selectRoom(ctx, cb, s, strings.TrimPrefix(data, "room:"))
	case data == "room_ok":
		b.showSummary(ctx, cb, s)
	case data == "checkout":
		b.showCheckout(ctx, cb, s)
	default:
		logger.Warn().Msg("unknown callback")
	}
}

// startBooking opens a fresh calendar screen, replacing any prior session.
func (b *Bot) startBooking(ctx context.Context, chatID int64) {
	b.cancelRun(chatID)
	delete(b.pendingStart, chatID)
	delete(b.drafts, chatID)
	s := b.sessions.Reset(chatID, b.cfg.RentalSlug)

	loadCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if rental := b.resolveRental(loadCtx); rental != nil {
		b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("🏡 Welcome to %s! Let's find you a room.", rental.Name)))
	}
	b.loadCalendarPrices(loadCtx, s, true)

	b.send(b.calendarMessage(chatID, s, nil))
	metrics.IncWizardTransition(string(wizard.StateCalendar))
}

// resolveRental fetches the rental descriptor once and keeps it. A fetch
// failure degrades to the configured defaults.
func (b *Bot) resolveRental(ctx context.Context) *rentalapi.Rental {
	if b.rental != nil {
		return b.rental
	}
	rental, err := b.api.FetchRental(ctx, b.cfg.RentalSlug)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("rental_slug", b.cfg.RentalSlug).Msg("rental lookup failed")
		return nil
	}
	b.rental = rental
	return rental
}

// currency prefers the rental's own currency over the configured one.
func (b *Bot) currency() string {
	if b.rental != nil && b.rental.Currency != "" {
		return b.rental.Currency
	}
	return b.cfg.Currency
}

// loadCalendarPrices fills the session cache for the active month (and the
// next, on first open). Failures degrade to unselectable days, never block.
func (b *Bot) loadCalendarPrices(ctx context.Context, s *wizard.Session, initial bool) {
	logger := zerolog.Ctx(ctx)

	roomID, err := b.resolveCalendarRoom(ctx, s.RentalSlug)
	if err != nil {
		logger.Warn().Err(err).Msg("no room for calendar prices")
		return
	}

	loader := pricing.NewLoader(b.api, s.Prices, logger)
	if initial {
		err = loader.LoadInitial(ctx, roomID, s.ActiveMonth)
	} else {
		err = loader.LoadMonth(ctx, roomID, s.ActiveMonth)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("calendar price load incomplete")
	}
	metrics.AddPriceEntriesMerged(s.Prices.Len())
}

func (b *Bot) resolveCalendarRoom(ctx context.Context, slug string) (int64, error) {
	if b.calendarRoomID != 0 {
		return b.calendarRoomID, nil
	}
	rooms, err := b.api.FetchAvailableRooms(ctx, slug, "", "")
	if err != nil {
		return 0, err
	}
	if len(rooms) == 0 {
		return 0, errors.New("rental has no rooms")
	}
	b.calendarRoomID = rooms[0].ID
	return b.calendarRoomID, nil
}

func (b *Bot) calendarMessage(chatID int64, s *wizard.Session, cb *tgbotapi.CallbackQuery) tgbotapi.Chattable {
	checkIn, checkOut := s.CheckIn, s.CheckOut
	if pending, ok := b.pendingStart[chatID]; ok {
		checkIn, checkOut = pending, time.Time{}
	}
	kb := GenerateCalendarKeyboard(s.ActiveMonth, s.Prices.Snapshot(), checkIn, checkOut)

	var sb strings.Builder
	sb.WriteString("🗓 Select your stay\n")
	switch {
	case s.HasDates():
		fmt.Fprintf(&sb, "%s → %s\n", s.CheckIn.Format("Jan 2"), s.CheckOut.Format("Jan 2, 2006"))
	case !checkIn.IsZero():
		fmt.Fprintf(&sb, "Check-in %s, now pick check-out\n", checkIn.Format("Jan 2, 2006"))
	default:
		sb.WriteString("Tap a check-in date\n")
	}
	fmt.Fprintf(&sb, "Guests: %d adult(s), %d child(ren)", s.Adults, s.Children)
	if s.StatusMessage != "" {
		sb.WriteString("\n\n⚠️ " + s.StatusMessage)
	}

	if cb != nil {
		return tgbotapi.NewEditMessageTextAndMarkup(chatID, cb.Message.MessageID, sb.String(), kb)
	}
	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = kb
	return msg
}

func (b *Bot) navigateMonth(ctx context.Context, cb *tgbotapi.CallbackQuery, s *wizard.Session, monthStr string) {
	month, err := time.Parse("2006-01", monthStr)
	if err != nil {
		return
	}
	s.ActiveMonth = month

	loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	b.loadCalendarPrices(loadCtx, s, false)

	b.send(b.calendarMessage(cb.Message.Chat.ID, s, cb))
}

// selectDate implements the two-tap range selection: first tap is check-in,
// second is check-out (swapped if reversed), a third tap starts over.
func (b *Bot) selectDate(ctx context.Context, cb *tgbotapi.CallbackQuery, s *wizard.Session, dateStr string) {
	chatID := cb.Message.Chat.ID
	if s.State != wizard.StateCalendar {
		// Old calendar messages keep their keyboards; taps on them arrive
		// from any later screen and must not touch the stay range.
		zerolog.Ctx(ctx).Debug().Str("state", string(s.State)).Msg("ignoring stale calendar tap")
		return
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return
	}

	pending, havePending := b.pendingStart[chatID]
	switch {
	case havePending:
		delete(b.pendingStart, chatID)
		if err := b.wizard.SetDates(s, pending, date); err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Msg("date selection refused")
		}
	default:
		if err := b.wizard.ClearDates(s); err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Msg("date reset refused")
			return
		}
		b.pendingStart[chatID] = date
	}

	b.send(b.calendarMessage(chatID, s, cb))
}

func (b *Bot) adjustGuests(ctx context.Context, cb *tgbotapi.CallbackQuery, s *wizard.Session, spec string) {
	if s.State != wizard.StateCalendar {
		zerolog.Ctx(ctx).Debug().Str("state", string(s.State)).Msg("ignoring stale guest tap")
		return
	}
	adults, children := s.Adults, s.Children
	switch spec {
	case "adults:+":
		adults++
	case "adults:-":
		adults--
	case "children:+":
		children++
	case "children:-":
		children--
	default:
		return
	}
	if err := b.wizard.SetGuests(s, adults, children); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("guest adjustment refused")
	}
	b.send(b.calendarMessage(cb.Message.Chat.ID, s, cb))
}

func (b *Bot) showRooms(ctx context.Context, cb *tgbotapi.CallbackQuery, s *wizard.Session) {
	chatID := cb.Message.Chat.ID

	if err := b.wizard.ProceedToRooms(s); err != nil {
		b.send(b.calendarMessage(chatID, s, cb))
		return
	}
	metrics.IncWizardTransition(string(wizard.StateSelectRoom))

	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	rooms, err := b.api.FetchAvailableRooms(fetchCtx, s.RentalSlug,
		s.CheckIn.Format("2006-01-02"), s.CheckOut.Format("2006-01-02"))
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("room listing failed")
		s.StatusMessage = "Could not load rooms, please try again."
		_ = b.wizard.Back(s)
		b.send(b.calendarMessage(chatID, s, cb))
		return
	}
	s.AvailableRooms = rooms

	if len(rooms) == 0 {
		s.StatusMessage = "No rooms available for these dates."
		_ = b.wizard.Back(s)
		b.send(b.calendarMessage(chatID, s, cb))
		return
	}

	options := make([]roomOption, 0, len(rooms))
	for i := range rooms {
		total := pricing.ComputeTotal(&rooms[i], s.CheckIn, s.CheckOut)
		options = append(options, roomOption{
			ID:    rooms[i].ID,
			Label: fmt.Sprintf("%s — %s %d total", rooms[i].Name, b.currency(), total),
		})
	}

	text := fmt.Sprintf("🛏 Rooms for %s → %s",
		s.CheckIn.Format("Jan 2"), s.CheckOut.Format("Jan 2, 2006"))
	b.send(tgbotapi.NewEditMessageTextAndMarkup(chatID, cb.Message.MessageID, text, GenerateRoomsKeyboard(options)))
}

func (b *Bot) selectRoom(ctx context.Context, cb *tgbotapi.CallbackQuery, s *wizard.Session, idStr string) {
	chatID := cb.Message.Chat.ID
	roomID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return
	}

	var room *rentalapi.Room
	for i := range s.AvailableRooms {
		if s.AvailableRooms[i].ID == roomID {
			room = &s.AvailableRooms[i]
			break
		}
	}
	if err := b.wizard.ChooseRoom(s, room); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("room selection refused")
		b.send(tgbotapi.NewMessage(chatID, s.StatusMessage))
		return
	}
	metrics.IncWizardTransition(string(wizard.StateRoomDetail))

	var sb strings.Builder
	fmt.Fprintf(&sb, "🛏 %s\n", s.Room.Name)
	if s.Room.Description != "" {
		sb.WriteString(s.Room.Description + "\n")
	}
	if s.Room.Capacity > 0 {
		fmt.Fprintf(&sb, "Sleeps %d\n", s.Room.Capacity)
	}
	fmt.Fprintf(&sb, "\nTotal for your stay: %s %d", b.currency(), s.DerivedPrice)

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Book this room", "room_ok"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", "back"),
			tgbotapi.NewInlineKeyboardButtonData("✖ Close", "cancel"),
		),
	)
	b.send(tgbotapi.NewEditMessageTextAndMarkup(chatID, cb.Message.MessageID, sb.String(), kb))
}

func (b *Bot) showSummary(ctx context.Context, cb *tgbotapi.CallbackQuery, s *wizard.Session) {
	chatID := cb.Message.Chat.ID
	if err := b.wizard.ConfirmRoom(s); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("summary refused")
		b.send(tgbotapi.NewMessage(chatID, s.StatusMessage))
		return
	}
	metrics.IncWizardTransition(string(wizard.StateSummary))
	b.send(b.summaryMessage(chatID, s, cb))
}

func (b *Bot) summaryMessage(chatID int64, s *wizard.Session, cb *tgbotapi.CallbackQuery) tgbotapi.Chattable {
	var sb strings.Builder
	sb.WriteString("📋 Booking summary\n\n")
	fmt.Fprintf(&sb, "Dates: %s → %s\n", s.CheckIn.Format("Jan 2"), s.CheckOut.Format("Jan 2, 2006"))
	fmt.Fprintf(&sb, "Guests: %d adult(s), %d child(ren)\n", s.Adults, s.Children)
	if s.Room != nil {
		fmt.Fprintf(&sb, "Room: %s\n", s.Room.Name)
	}
	fmt.Fprintf(&sb, "Total: %s %d\n", b.currency(), s.DerivedPrice)
	sb.WriteString("\nReply with any special request, or proceed to payment.")
	if s.StatusMessage != "" {
		sb.WriteString("\n\n⚠️ " + s.StatusMessage)
	}

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💳 Proceed to payment", "checkout"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➕ Change room", "back"),
			tgbotapi.NewInlineKeyboardButtonData("✖ Close", "cancel"),
		),
	)
	if cb != nil {
		return tgbotapi.NewEditMessageTextAndMarkup(chatID, cb.Message.MessageID, sb.String(), kb)
	}
	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = kb
	return msg
}

func (b *Bot) showCheckout(ctx context.Context, cb *tgbotapi.CallbackQuery, s *wizard.Session) {
	chatID := cb.Message.Chat.ID
	if err := b.wizard.ProceedToCheckout(s, b.drafts[chatID]); err != nil {
		if wizard.IsValidation(err) {
			b.send(tgbotapi.NewMessage(chatID, s.StatusMessage))
			return
		}
		// Missing booking reference despite passing every screen: a bug, not
		// user error. Log loudly and stop the flow.
		zerolog.Ctx(ctx).Error().Err(err).
			Int64("chat_id", chatID).
			Msg("checkout reached without booking reference")
		b.send(tgbotapi.NewMessage(chatID, s.StatusMessage))
		return
	}
	metrics.IncWizardTransition(string(wizard.StateCheckout))

	text := fmt.Sprintf(
		"💳 Pay %s %d via M-Pesa\n\nSend your phone number (07XXXXXXXX or 2547XXXXXXXX) and you will receive a payment prompt.",
		b.currency(), s.DerivedPrice)
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", "back"),
			tgbotapi.NewInlineKeyboardButtonData("✖ Close", "cancel"),
		),
	)
	b.send(tgbotapi.NewEditMessageTextAndMarkup(chatID, cb.Message.MessageID, text, kb))
}

// startPayment drives one checkout attempt from a phone number message.
func (b *Bot) startPayment(ctx context.Context, chatID int64, s *wizard.Session, phone string) {
	logger := zerolog.Ctx(ctx).With().Int64("chat_id", chatID).Logger()

	snap := s.PaymentSnapshot()
	if snap.Phase == wizard.PaymentInitiating || snap.Phase == wizard.PaymentAwaiting {
		b.send(tgbotapi.NewMessage(chatID, "A payment is already in progress, please wait."))
		return
	}
	if err := s.BeginPayment(); err != nil {
		logger.Warn().Err(err).Msg("payment attempt refused")
		return
	}

	var roomID int64
	var roomName string
	if s.Room != nil {
		roomID, roomName = s.Room.ID, s.Room.Name
	}

	initCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	res, err := b.initiator.Initiate(initCtx, payment.Request{
		Phone:      phone,
		Amount:     s.DerivedPrice,
		RentalSlug: s.RoomRentalSlug,
		RoomID:     roomID,
		RoomName:   roomName,
		AccountRef: b.cfg.AccountRef,
	})
	if err != nil {
		switch {
		case payment.IsValidation(err):
			_ = s.AbandonPayment(err.Error())
			b.send(tgbotapi.NewMessage(chatID, err.Error()))
		case errors.Is(err, payment.ErrMissingBookingRef):
			_ = s.ResolvePayment(wizard.PaymentFailed, err.Error())
			b.send(tgbotapi.NewMessage(chatID, "Something went wrong with your booking. Please start again or contact support."))
		default:
			_ = s.ResolvePayment(wizard.PaymentFailed, err.Error())
			b.send(tgbotapi.NewMessage(chatID, err.Error()+"\nSend your phone number to try again."))
		}
		return
	}

	if res.CheckoutRequestID == "" {
		// Nothing to reconcile; show the gateway's own wording.
		_ = s.AbandonPayment(res.Message)
		b.send(tgbotapi.NewMessage(chatID, res.Message))
		return
	}

	if err := s.MarkAwaiting(res.CheckoutRequestID); err != nil {
		logger.Error().Err(err).Msg("payment state out of sync")
		return
	}
	metrics.IncPaymentInitiated()
	b.send(tgbotapi.NewMessage(chatID, "📲 Payment prompt sent. Enter your M-Pesa PIN on your phone."))

	run := b.reconciler.Start(b.runCtx, res.CheckoutRequestID, s.RecordPollAttempt)
	b.setRun(chatID, run)
	go b.watchRun(chatID, s, run)
}

// watchRun waits for a reconciliation run and applies its outcome to the
// session. A canceled run mutates nothing.
func (b *Bot) watchRun(chatID int64, s *wizard.Session, run *payment.Run) {
	<-run.Done()
	b.clearRun(chatID, run)

	outcome := run.Outcome()
	if outcome == payment.OutcomeCanceled {
		return
	}
	metrics.IncPaymentOutcome(string(outcome))
	metrics.ObservePollAttempts(run.Attempts())

	switch outcome {
	case payment.OutcomeSucceeded:
		_ = s.ResolvePayment(wizard.PaymentSucceeded, "")
		b.send(tgbotapi.NewMessage(chatID, "✅ Payment confirmed! Your booking is complete."))
	case payment.OutcomeFailed:
		_ = s.ResolvePayment(wizard.PaymentFailed, "payment failed")
		b.send(tgbotapi.NewMessage(chatID, "❌ Payment failed. Send your phone number to try again."))
	case payment.OutcomeTimedOut:
		_ = s.ResolvePayment(wizard.PaymentTimedOut, "no confirmation received")
		b.send(tgbotapi.NewMessage(chatID,
			"⏳ No payment confirmation received yet. If you entered your PIN, the payment may still complete. "+
				"Send your phone number to try again."))
	}
}

// closeBooking tears down the chat's session and stops any reconciliation.
func (b *Bot) closeBooking(chatID int64, farewell string) {
	b.cancelRun(chatID)
	if s := b.sessions.Get(chatID); s != nil {
		b.wizard.Close(s)
	}
	b.sessions.Delete(chatID)
	delete(b.pendingStart, chatID)
	delete(b.drafts, chatID)
	b.send(tgbotapi.NewMessage(chatID, farewell))
	metrics.IncWizardTransition(string(wizard.StateClosed))
}

func (b *Bot) goBack(ctx context.Context, cb *tgbotapi.CallbackQuery, s *wizard.Session) {
	chatID := cb.Message.Chat.ID
	if err := b.wizard.Back(s); err != nil {
		b.send(tgbotapi.NewMessage(chatID, s.StatusMessage))
		return
	}
	metrics.IncWizardTransition(string(s.State))

	switch s.State {
	case wizard.StateCalendar:
		b.send(b.calendarMessage(chatID, s, cb))
	case wizard.StateSelectRoom:
		// Re-enter the listing through the forward handler to refresh it.
		_ = b.wizard.Back(s) // back to calendar first; showRooms transitions forward
		b.showRooms(ctx, cb, s)
	case wizard.StateSummary:
		b.send(b.summaryMessage(chatID, s, cb))
	}
}

func (b *Bot) setRun(chatID int64, run *payment.Run) {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if prev, ok := b.runs[chatID]; ok {
		prev.Cancel()
	}
	b.runs[chatID] = run
}

func (b *Bot) clearRun(chatID int64, run *payment.Run) {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.runs[chatID] == run {
		delete(b.runs, chatID)
	}
}

func (b *Bot) cancelRun(chatID int64) {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if run, ok := b.runs[chatID]; ok {
		run.Cancel()
		delete(b.runs, chatID)
	}
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.tg.Send(c); err != nil {
		b.logger.Error().Err(err).Msg("telegram send failed")
	}
}

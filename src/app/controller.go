// Package app owns the client state and serialises every change to it
// through one event loop.
package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/orchestra-mcp/railbook/src/api"
	"github.com/orchestra-mcp/railbook/src/booking"
	"github.com/orchestra-mcp/railbook/src/clock"
	"github.com/orchestra-mcp/railbook/src/feed"
	"github.com/orchestra-mcp/railbook/src/payment"
	"github.com/orchestra-mcp/railbook/src/render"
	"github.com/orchestra-mcp/railbook/src/session"
	"github.com/orchestra-mcp/railbook/src/types"
	"github.com/orchestra-mcp/railbook/src/viewport"
	"github.com/rs/zerolog"
)

// ToastDuration is how long a toast stays up.
const ToastDuration = 2200 * time.Millisecond

const shortToast = 1200 * time.Millisecond

// DefaultRefundReason is sent when a refund gives none.
const DefaultRefundReason = "前端发起退票"

// Backend is the REST surface the controller drives. *api.Client
// implements it.
type Backend interface {
	Search(ctx context.Context, q types.SearchQuery) (types.SearchPage, error)
	TrainDetail(ctx context.Context, trainID, from, to string) (types.TrainDetail, error)
	Login(ctx context.Context, phone, password string) (api.LoginResult, error)
	Profile(ctx context.Context) (types.UserInfo, error)
	VerifyRealName(ctx context.Context, realName, idCard, phone string) error
	Passengers(ctx context.Context) ([]types.SavedPassenger, error)
	CreateOrder(ctx context.Context, req types.CreateOrderRequest) (types.CreatedOrder, error)
	PayOrder(ctx context.Context, orderID, channel string) (types.PayResult, error)
	MockNotify(ctx context.Context, orderID, payNo string) error
	OrderInfo(ctx context.Context, orderID string) (types.OrderDetail, error)
	CancelOrder(ctx context.Context, orderID string) error
	RefundOrder(ctx context.Context, orderID, reason string) (types.RefundResult, error)
	ChangeOrder(ctx context.Context, req types.ChangeRequest) (types.ChangeResult, error)
}

// Feeds is the live channel manager. *feed.Multiplexer implements it.
type Feeds interface {
	SetMax(n int)
	Sync(keys []types.SubscriptionKey)
	CloseAll()
	Desired() []types.SubscriptionKey
	OpenCount() int
}

// Options configures a Controller. Backend, Feeds and Credentials are
// required.
type Options struct {
	Backend      Backend
	Feeds        Feeds
	Credentials  *session.Store
	Clock        clock.Clock
	Logger       zerolog.Logger
	MaxConns     int
	PollInterval time.Duration
	Frame        time.Duration
	Layout       viewport.Config
	// OnRender receives every frame. It is called on the loop and must
	// not block.
	OnRender func(View)
}

type pages struct {
	index   int
	cursors []string
}

type payState struct {
	orderID string
	created *types.CreatedOrder
	order   *types.OrderInfo
	seats   []types.OrderSeat
	result  *types.PayResult
	paying  bool
}

type verifyState struct {
	errors     map[booking.Field]error
	submitting bool
	next       string
}

// state is touched only from the loop goroutine.
type state struct {
	screen    Screen
	toast     string
	loading   bool
	signingIn bool

	profile    *types.UserInfo
	passengers []types.SavedPassenger
	loginNext  string

	query      types.SearchQuery
	trains     []types.Train
	pages      pages
	nextCursor string
	searchSeq  int

	pay    payState
	verify verifyState

	// afterProfile is a return target followed once the profile loads.
	afterProfile string
}

// Controller is the single owner of client state. Views, feeds, timers
// and REST calls reach it only through Post.
type Controller struct {
	backend  Backend
	feeds    Feeds
	creds    *session.Store
	clock    clock.Clock
	logger   zerolog.Logger
	maxConns int
	onRender func(View)

	windower  *viewport.Windower
	flow      *booking.Flow
	poller    *payment.Poller
	scheduler *render.Scheduler

	st         state
	toastSeq   int
	toastTimer *clock.Timer

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a controller. Call Run to start it.
func New(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = feed.DefaultMaxConns
	}
	if opts.Layout == (viewport.Config{}) {
		opts.Layout = viewport.DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		backend:  opts.Backend,
		feeds:    opts.Feeds,
		creds:    opts.Credentials,
		clock:    opts.Clock,
		logger:   opts.Logger.With().Str("component", "controller").Logger(),
		maxConns: opts.MaxConns,
		onRender: opts.OnRender,
		windower: viewport.New(opts.Layout),
		flow:     booking.NewFlow(),
		events:   make(chan Event, 256),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.st.pages = pages{cursors: []string{""}}
	c.poller = payment.NewPoller(opts.Backend, opts.Clock, opts.PollInterval, func(orderID string, d types.OrderDetail) {
		c.Post(orderStatus{orderID: orderID, detail: d})
	}, opts.Logger)
	// Failed ticks are retried, except a rejected credential.
	c.poller.OnError(func(orderID string, err error) {
		if errors.Is(err, api.ErrAuthExpired) {
			c.Post(orderStatus{orderID: orderID, err: err})
		}
	})
	c.scheduler = render.NewScheduler(opts.Clock, opts.Frame, func(f func()) {
		c.Post(runFunc(f))
	}, c.render)
	return c
}

// Post queues an event. Events posted after shutdown began are dropped.
func (c *Controller) Post(ev Event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

// OnFeedUpdate is the multiplexer's update callback.
func (c *Controller) OnFeedUpdate(u feed.Update) {
	c.Post(FeedUpdated{u})
}

// Run processes events until ctx is done, then tears everything down.
func (c *Controller) Run(ctx context.Context) {
	c.boot()
	for {
		select {
		case ev := <-c.events:
			c.handle(ev)
		case <-ctx.Done():
			c.shutdown()
			return
		}
	}
}

func (c *Controller) boot() {
	if c.authenticated() {
		c.loadProfile()
		c.loadPassengers()
	} else if c.creds.Token() != "" {
		c.logger.Info().Msg("stored credential expired")
		c.clearCredential()
	}
	c.scheduler.Schedule()
}

func (c *Controller) shutdown() {
	c.scheduler.Stop()
	c.poller.Stop()
	c.feeds.CloseAll()
	if c.toastTimer != nil {
		c.toastTimer.Stop()
	}
	c.cancel()
	c.wg.Wait()
	c.logger.Info().Msg("controller stopped")
}

func (c *Controller) handle(ev Event) {
	switch e := ev.(type) {
	case runFunc:
		e()

	case Search:
		c.search(e.Query)
	case NextPage:
		c.nextPage()
	case PrevPage:
		c.prevPage()
	case searchLoaded:
		c.searchLoaded(e)
	case Scroll:
		if c.windower.ScrollRows(e.Rows) {
			c.scheduler.Schedule()
		}
	case Measured:
		if c.windower.Calibrate(e.Measurement) {
			c.scheduler.Schedule()
		}
	case FeedUpdated:
		c.propagate(e.Update)
	case Navigate:
		c.navigate(e.To)

	case OpenBooking:
		c.openBooking(e.TrainID)
	case detailLoaded:
		if s := c.flow.Session(); s != nil && s.Train.TrainID == e.trainID {
			if e.err != nil {
				c.fail(e.err, "加载车次详情失败")
				return
			}
			s.SetFare(e.detail)
			c.scheduler.Schedule()
		}
	case AddPassenger, RemovePassenger, ToggleSelf, LinkPassenger, EditName,
		EditIDNumber, ChooseSeatClass, PickSeat:
		c.editBooking(ev)
	case BookingNext:
		if err := c.flow.Next(); err != nil {
			c.bookingError(err)
		}
		c.scheduler.Schedule()
	case BookingBack:
		_ = c.flow.Back()
		c.scheduler.Schedule()
	case SubmitBooking:
		c.submit()
	case orderCreated:
		c.orderCreated(e)
	case CancelBooking:
		if c.flow.Cancel() == nil {
			c.st.screen = ScreenResults
			c.scheduler.Schedule()
		}

	case AttachOrder:
		c.attachOrder(strings.TrimSpace(e.OrderID))
	case PayOrder:
		c.payOrder(e.Channel)
	case payDone:
		c.payDone(e)
	case MockPay:
		c.mockPay()
	case RefreshPayment:
		c.fetchStatus(c.st.pay.orderID)
	case orderStatus:
		c.observe(e)
	case CancelOrder:
		id := c.st.pay.orderID
		c.orderAction(id, "已取消订单", "取消失败", func(ctx context.Context) error {
			return c.backend.CancelOrder(ctx, id)
		})
	case RefundOrder:
		id, reason := c.st.pay.orderID, e.Reason
		if reason == "" {
			reason = DefaultRefundReason
		}
		c.orderAction(id, "已发起退票", "退票失败", func(ctx context.Context) error {
			_, err := c.backend.RefundOrder(ctx, id, reason)
			return err
		})
	case ChangeOrder:
		c.changeOrder(e.TrainID)
	case actionDone:
		c.actionDone(e)
	case LeavePayment:
		c.leavePayment()
		c.st.screen = ScreenResults
		c.scheduler.Schedule()

	case Login:
		c.login(e)
	case loginDone:
		c.loginDone(e)
	case Logout:
		c.logout()
		c.st.screen = ScreenResults
		c.toast("已退出登录")
	case VerifyRealName:
		c.verify(e)
	case verifyDone:
		c.verifyDone(e)
	case profileLoaded:
		c.profileLoaded(e)
	case passengersLoaded:
		if e.err != nil {
			c.st.passengers = nil
			c.logger.Debug().Err(e.err).Msg("passengers unavailable")
			if errors.Is(e.err, api.ErrAuthExpired) {
				c.fail(e.err, "")
			}
			return
		}
		c.st.passengers = e.saved
		if s := c.flow.Session(); s != nil {
			s.SetSavedPassengers(e.saved)
		}
		c.scheduler.Schedule()

	case toastExpired:
		if e.seq == c.toastSeq {
			c.st.toast = ""
			c.scheduler.Schedule()
		}

	default:
		c.logger.Warn().Type("event", ev).Msg("unhandled event")
	}
}

// async runs f off the loop and posts its result back.
func (c *Controller) async(f func(ctx context.Context) Event) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ev := f(c.ctx)
		if c.ctx.Err() != nil {
			return
		}
		c.Post(ev)
	}()
}

func (c *Controller) render() {
	s := c.flow.Session()
	if !c.flow.BookingOpen() {
		s = nil
	}
	keys := DesiredKeys(c.st.screen, s, c.windower.VisibleIDs(), c.st.query.SeatType, c.st.query.TravelDate)
	c.feeds.SetMax(c.maxConns)
	c.feeds.Sync(keys)

	if c.onRender != nil {
		c.onRender(c.view())
	}
}

func (c *Controller) view() View {
	w := c.windower.Window()
	v := View{
		Screen:     c.st.screen,
		Toast:      c.st.toast,
		Loading:    c.st.loading,
		SigningIn:  c.st.signingIn,
		SignedIn:   c.authenticated(),
		Credential: c.creds.Current(),
		LoginNext:  c.st.loginNext,
		Query:      c.st.query,
		Window:     w,
		Total:      len(c.st.trains),
		Scroll:     c.windower.Scroll(),
		Layout:     c.windower.Config(),
		Page:       c.st.pages.index,
		HasPrev:    c.st.pages.index > 0,
		HasNext:    c.st.nextCursor != "",
		Desired:    c.feeds.Desired(),
		LiveOpen:   c.feeds.OpenCount(),
		Verify: VerifyView{
			Submitting: c.st.verify.submitting,
			Next:       c.st.verify.next,
		},
	}
	if w.End <= len(c.st.trains) {
		v.Rows = append([]types.Train(nil), c.st.trains[w.Start:w.End]...)
	}
	if c.st.profile != nil {
		p := *c.st.profile
		v.Profile = &p
	}
	if len(c.st.verify.errors) > 0 {
		v.Verify.Errors = make(map[booking.Field]error, len(c.st.verify.errors))
		for k, e := range c.st.verify.errors {
			v.Verify.Errors[k] = e
		}
	}
	errMsg := ""
	if err := c.flow.LastError(); err != nil {
		errMsg = api.Message(err, "下单失败")
	}
	v.Booking = bookingView(c.flow, errMsg)
	v.Pay = c.st.pay.view(c.flow, c.poller.Active() != "" && c.poller.Active() == c.st.pay.orderID)
	return v
}

func (c *Controller) toast(msg string) { c.toastFor(msg, ToastDuration) }

// toastFor replaces the current toast. Only the newest toast's timer
// clears it.
func (c *Controller) toastFor(msg string, d time.Duration) {
	c.toastSeq++
	seq := c.toastSeq
	c.st.toast = msg
	if c.toastTimer != nil {
		c.toastTimer.Stop()
	}
	c.toastTimer = c.clock.AfterFunc(d, func() { c.Post(toastExpired{seq: seq}) })
	c.scheduler.Schedule()
}

// fail surfaces a user-visible failure. An expired credential signs the
// user out and sends them to login, coming back to where they were.
func (c *Controller) fail(err error, fallback string) {
	if errors.Is(err, api.ErrAuthExpired) {
		next := c.target()
		c.logout()
		c.st.loginNext = next
		c.st.screen = ScreenLogin
		c.toast(api.Message(err, ""))
		return
	}
	c.logger.Debug().Err(err).Msg(fallback)
	if fallback != "" {
		c.toast(api.Message(err, fallback))
	}
}

// target names where the user is, for returning after login.
func (c *Controller) target() string {
	switch c.st.screen {
	case ScreenBooking:
		if s := c.flow.Session(); s != nil {
			return booking.BookingTarget(s.Train.TrainID)
		}
	case ScreenPayment:
		if c.st.pay.orderID != "" {
			return payTarget(c.st.pay.orderID)
		}
	case ScreenLogin:
		return c.st.loginNext
	case ScreenVerify:
		return c.st.verify.next
	}
	return targetResults
}

func (c *Controller) follow(next string) {
	switch {
	case strings.HasPrefix(next, bookPrefix):
		c.openBooking(strings.TrimPrefix(next, bookPrefix))
	case strings.HasPrefix(next, payPrefix):
		c.attachOrder(strings.TrimPrefix(next, payPrefix))
	default:
		c.st.screen = ScreenResults
		c.scheduler.Schedule()
	}
}

// navigate switches between the pages that need no setup.
func (c *Controller) navigate(to Screen) {
	switch to {
	case ScreenResults:
	case ScreenLogin:
		if c.st.screen != ScreenLogin {
			c.st.loginNext = c.target()
		}
	case ScreenVerify:
		if !c.authenticated() {
			c.st.loginNext = targetResults
			to = ScreenLogin
			break
		}
		if c.st.screen != ScreenVerify {
			c.st.verify = verifyState{next: c.target()}
		}
	default:
		return
	}
	switch c.st.screen {
	case ScreenBooking:
		_ = c.flow.Cancel()
	case ScreenPayment:
		c.leavePayment()
	}
	c.st.screen = to
	c.scheduler.Schedule()
}

func (c *Controller) authenticated() bool {
	return session.Valid(c.creds.Token(), c.clock.Now())
}

func (c *Controller) clearCredential() {
	if err := c.creds.Clear(); err != nil {
		c.logger.Error().Err(err).Msg("clear credential")
	}
}

// logout drops the credential and everything bound to it.
func (c *Controller) logout() {
	c.clearCredential()
	c.st.profile = nil
	c.st.passengers = nil
	c.st.afterProfile = ""
	c.poller.Stop()
	c.feeds.CloseAll()
	c.flow = booking.NewFlow()
	c.st.pay = payState{}
	c.scheduler.Schedule()
}

// Search

func (c *Controller) search(q types.SearchQuery) {
	today := c.clock.Now().Format("2006-01-02")
	if err := ValidateSearch(q, today); err != nil {
		c.toast(searchMessages[err])
		return
	}
	q.DepartureStation = strings.TrimSpace(q.DepartureStation)
	q.ArrivalStation = strings.TrimSpace(q.ArrivalStation)
	if q.Limit <= 0 {
		q.Limit = api.DefaultSearchLimit
	}
	c.st.query = q
	c.st.pages = pages{cursors: []string{""}}
	c.st.nextCursor = ""
	c.st.screen = ScreenResults
	c.runSearch("")
}

func (c *Controller) nextPage() {
	if c.st.nextCursor == "" || c.st.loading {
		return
	}
	p := &c.st.pages
	next := c.st.nextCursor
	if p.index+1 >= len(p.cursors) {
		p.cursors = append(p.cursors, next)
	} else if p.cursors[p.index+1] == "" {
		p.cursors[p.index+1] = next
	}
	p.index++
	c.runSearch(next)
}

func (c *Controller) prevPage() {
	p := &c.st.pages
	if c.st.loading || p.index <= 0 {
		return
	}
	p.index--
	c.runSearch(p.cursors[p.index])
}

func (c *Controller) runSearch(cursor string) {
	c.st.searchSeq++
	seq := c.st.searchSeq
	q := c.st.query
	q.Cursor = cursor
	c.st.query.Cursor = cursor
	c.st.loading = true
	c.scheduler.Schedule()
	c.async(func(ctx context.Context) Event {
		page, err := c.backend.Search(ctx, q)
		return searchLoaded{seq: seq, page: page, err: err}
	})
}

func (c *Controller) searchLoaded(e searchLoaded) {
	if e.seq != c.st.searchSeq {
		return
	}
	c.st.loading = false
	c.scheduler.Schedule()
	if e.err != nil {
		c.fail(e.err, "查询失败")
		return
	}
	c.st.trains = e.page.Items
	c.st.nextCursor = e.page.NextCursor
	ids := make([]string, len(e.page.Items))
	for i, t := range e.page.Items {
		ids[i] = t.TrainID
	}
	c.windower.SetItems(ids)
}

// propagate folds an accepted live update into the rows and the open
// booking. Nothing is redrawn unless a value changed.
func (c *Controller) propagate(u feed.Update) {
	changed := false
	if u.Key.TravelDate == c.st.query.TravelDate {
		for i := range c.st.trains {
			t := &c.st.trains[i]
			if t.TrainID == u.Key.TrainID && t.SeatType == u.Key.SeatClass && t.RemainingSeatCount != u.Remaining {
				t.RemainingSeatCount = u.Remaining
				changed = true
			}
		}
	}
	if s := c.flow.Session(); s != nil && s.ApplyRemaining(u.Key, u.Remaining) {
		changed = true
	}
	if changed {
		c.scheduler.Schedule()
	}
}

// Booking

func (c *Controller) findTrain(id string) (types.Train, bool) {
	for _, t := range c.st.trains {
		if t.TrainID == id {
			return t, true
		}
	}
	return types.Train{}, false
}

func (c *Controller) openBooking(trainID string) {
	train, ok := c.findTrain(trainID)
	if !ok {
		c.st.screen = ScreenResults
		c.scheduler.Schedule()
		return
	}
	who := booking.Identity{Authenticated: c.authenticated()}
	if who.Authenticated && c.st.profile == nil {
		c.st.afterProfile = booking.BookingTarget(trainID)
		c.loadProfile()
		return
	}
	if c.st.profile != nil {
		who.Profile = *c.st.profile
	}
	redirect, err := c.flow.Open(train, c.st.query.TravelDate, who)
	if err != nil {
		c.logger.Debug().Err(err).Msg("open booking")
		return
	}
	if redirect != nil {
		switch redirect.To {
		case booking.RouteLogin:
			c.st.loginNext = redirect.Next
			c.st.screen = ScreenLogin
			c.toast("请先登录")
		case booking.RouteVerify:
			c.st.verify = verifyState{next: redirect.Next}
			c.st.screen = ScreenVerify
			c.toast("请先完成实名认证")
		}
		return
	}

	c.flow.Session().SetSavedPassengers(c.st.passengers)
	c.st.screen = ScreenBooking
	c.scheduler.Schedule()
	c.async(func(ctx context.Context) Event {
		d, err := c.backend.TrainDetail(ctx, train.TrainID, train.DepartureStation, train.ArrivalStation)
		return detailLoaded{trainID: train.TrainID, detail: d, err: err}
	})
	c.loadPassengers()
}

func (c *Controller) editBooking(ev Event) {
	s := c.flow.Session()
	if s == nil || c.flow.State() != booking.Passengers {
		return
	}
	var err error
	switch e := ev.(type) {
	case AddPassenger:
		s.AddDraft()
	case RemovePassenger:
		err = s.RemoveDraft(e.Index)
	case ToggleSelf:
		err = s.ToggleSelf(e.Index)
	case LinkPassenger:
		err = s.LinkPassenger(e.Index, e.PassengerID)
	case EditName:
		err = s.SetName(e.Index, e.Value)
	case EditIDNumber:
		err = s.SetIDNumber(e.Index, e.Value)
	case ChooseSeatClass:
		err = s.SetSeatClass(e.Index, e.Class)
	case PickSeat:
		err = s.PickSeat(e.Index, e.Seat)
	}
	if err != nil {
		c.bookingError(err)
	}
	c.scheduler.Schedule()
}

func (c *Controller) bookingError(err error) {
	switch {
	case errors.Is(err, booking.ErrValidation):
		c.toast("请检查实名信息与席别选择")
	case errors.Is(err, booking.ErrNotVerified):
		c.toast("请先完成实名认证")
	case errors.Is(err, booking.ErrSeatUnavailable):
		c.toast("该座位不可选")
	default:
		c.logger.Debug().Err(err).Msg("booking edit rejected")
	}
}

func (c *Controller) submit() {
	if !c.authenticated() {
		c.fail(api.ErrAuthExpired, "")
		return
	}
	req, err := c.flow.BeginSubmit()
	if err != nil {
		c.bookingError(err)
		c.scheduler.Schedule()
		return
	}
	c.scheduler.Schedule()
	c.async(func(ctx context.Context) Event {
		o, err := c.backend.CreateOrder(ctx, req)
		return orderCreated{order: o, err: err}
	})
}

func (c *Controller) orderCreated(e orderCreated) {
	if c.flow.State() != booking.Submitting {
		return
	}
	if e.err != nil {
		_ = c.flow.SubmitFailed(e.err)
		c.fail(e.err, "下单失败")
		c.scheduler.Schedule()
		return
	}
	_ = c.flow.SubmitSucceeded(e.order.OrderID)
	created := e.order
	c.st.pay = payState{orderID: created.OrderID, created: &created, seats: created.Seats}
	c.st.screen = ScreenPayment
	c.poller.Start(created.OrderID)
	c.toast("下单成功，请支付")
}

// Payment

func (c *Controller) attachOrder(orderID string) {
	if orderID == "" {
		return
	}
	if !c.authenticated() {
		c.st.loginNext = payTarget(orderID)
		c.st.screen = ScreenLogin
		c.toast("请先登录")
		return
	}
	if err := c.flow.AttachPayment(orderID); err != nil {
		c.logger.Debug().Err(err).Msg("attach payment")
		return
	}
	c.st.pay = payState{orderID: orderID}
	c.st.screen = ScreenPayment
	c.poller.Start(orderID)
	c.fetchStatus(orderID)
}

func (c *Controller) leavePayment() {
	c.poller.Stop()
	c.flow.LeavePayment()
	c.st.pay = payState{}
}

func (c *Controller) payOrder(channel string) {
	id := c.st.pay.orderID
	if id == "" || c.st.pay.paying {
		return
	}
	c.st.pay.paying = true
	c.scheduler.Schedule()
	c.async(func(ctx context.Context) Event {
		r, err := c.backend.PayOrder(ctx, id, channel)
		return payDone{orderID: id, res: r, err: err}
	})
}

func (c *Controller) payDone(e payDone) {
	if e.orderID != c.st.pay.orderID {
		return
	}
	c.st.pay.paying = false
	c.scheduler.Schedule()
	if e.err != nil {
		c.fail(e.err, "支付失败")
		return
	}
	r := e.res
	c.st.pay.result = &r
	if r.PayURL != "" {
		c.toast("已生成支付链接")
	}
}

func (c *Controller) mockPay() {
	id := c.st.pay.orderID
	if id == "" {
		return
	}
	if c.st.pay.result == nil || c.st.pay.result.PayNo == "" {
		c.toast("缺少pay_no，请先点支付生成")
		return
	}
	payNo := c.st.pay.result.PayNo
	c.orderAction(id, "已触发模拟回调", "模拟回调失败", func(ctx context.Context) error {
		return c.backend.MockNotify(ctx, id, payNo)
	})
}

// changeOrder moves the attached order to a train from the result list.
func (c *Controller) changeOrder(trainID string) {
	id := c.st.pay.orderID
	if id == "" {
		return
	}
	train, ok := c.findTrain(strings.TrimSpace(trainID))
	if !ok {
		c.toast("请选择要改签的车次")
		return
	}
	req := types.ChangeRequest{
		OrderID:             id,
		NewTrainID:          train.TrainID,
		NewDepartureStation: train.DepartureStation,
		NewArrivalStation:   train.ArrivalStation,
	}
	c.orderAction(id, "改签成功", "改签失败", func(ctx context.Context) error {
		_, err := c.backend.ChangeOrder(ctx, req)
		return err
	})
}

func (c *Controller) orderAction(orderID, ok, failed string, f func(ctx context.Context) error) {
	if orderID == "" {
		return
	}
	c.async(func(ctx context.Context) Event {
		return actionDone{orderID: orderID, ok: ok, failed: failed, err: f(ctx)}
	})
}

func (c *Controller) actionDone(e actionDone) {
	if e.err != nil {
		c.fail(e.err, e.failed)
		return
	}
	c.toast(e.ok)
	if e.orderID == c.st.pay.orderID {
		c.fetchStatus(e.orderID)
	}
}

// fetchStatus loads the order once, outside the poller's schedule.
func (c *Controller) fetchStatus(orderID string) {
	if orderID == "" {
		return
	}
	c.async(func(ctx context.Context) Event {
		d, err := c.backend.OrderInfo(ctx, orderID)
		return orderStatus{orderID: orderID, detail: d, manual: true, err: err}
	})
}

func (c *Controller) observe(e orderStatus) {
	if e.orderID != c.st.pay.orderID {
		return
	}
	if e.err != nil {
		c.fail(e.err, "刷新失败")
		return
	}
	if e.detail.Order != nil {
		o := *e.detail.Order
		c.st.pay.order = &o
	}
	if len(e.detail.Seats) > 0 {
		c.st.pay.seats = e.detail.Seats
	}
	if c.flow.ObserveStatus(e.orderID, e.detail.Status()).Terminal() {
		c.poller.Stop()
	}
	if e.manual && e.detail.Status() != "" {
		c.toastFor("已刷新订单状态", shortToast)
	}
	c.scheduler.Schedule()
}

// Account

func (c *Controller) loadProfile() {
	c.async(func(ctx context.Context) Event {
		u, err := c.backend.Profile(ctx)
		return profileLoaded{user: u, err: err}
	})
}

func (c *Controller) loadPassengers() {
	c.async(func(ctx context.Context) Event {
		p, err := c.backend.Passengers(ctx)
		return passengersLoaded{saved: p, err: err}
	})
}

func (c *Controller) profileLoaded(e profileLoaded) {
	next := c.st.afterProfile
	c.st.afterProfile = ""
	if e.err != nil {
		c.fail(e.err, "加载个人信息失败")
		return
	}
	u := e.user
	c.st.profile = &u
	c.scheduler.Schedule()
	if next != "" {
		c.follow(next)
	}
}

func (c *Controller) login(e Login) {
	phone, password := strings.TrimSpace(e.Phone), strings.TrimSpace(e.Password)
	if phone == "" || password == "" {
		c.toast("请输入手机号和密码")
		return
	}
	if c.st.signingIn {
		return
	}
	c.st.signingIn = true
	c.scheduler.Schedule()
	c.async(func(ctx context.Context) Event {
		res, err := c.backend.Login(ctx, phone, password)
		return loginDone{res: res, err: err}
	})
}

func (c *Controller) loginDone(e loginDone) {
	c.st.signingIn = false
	c.scheduler.Schedule()
	if e.err != nil {
		c.fail(e.err, "登录失败")
		return
	}
	if err := c.creds.Save(e.res.Credential); err != nil {
		c.logger.Error().Err(err).Msg("save credential")
	}
	c.st.profile = nil
	if e.res.User.UserID != "" {
		u := e.res.User
		c.st.profile = &u
	}
	c.toast("登录成功")
	next := c.st.loginNext
	c.st.loginNext = ""
	c.loadPassengers()
	if c.st.profile == nil {
		c.st.afterProfile = next
		c.loadProfile()
		return
	}
	c.follow(next)
}

func (c *Controller) verify(e VerifyRealName) {
	if c.st.verify.submitting {
		return
	}
	errs := map[booking.Field]error{}
	if err := booking.ValidateName(e.Name); err != nil {
		errs[booking.FieldName] = err
	}
	if err := booking.ValidateID(e.IDNumber); err != nil {
		errs[booking.FieldID] = err
	}
	if err := booking.ValidatePhone(e.Phone); err != nil {
		errs[booking.FieldPhone] = err
	}
	c.st.verify.errors = errs
	c.scheduler.Schedule()
	if len(errs) > 0 {
		return
	}
	c.st.verify.submitting = true
	name, id, phone := strings.TrimSpace(e.Name), booking.NormalizeID(e.IDNumber), strings.TrimSpace(e.Phone)
	c.async(func(ctx context.Context) Event {
		return verifyDone{err: c.backend.VerifyRealName(ctx, name, id, phone)}
	})
}

func (c *Controller) verifyDone(e verifyDone) {
	c.st.verify.submitting = false
	c.scheduler.Schedule()
	if e.err != nil {
		c.fail(e.err, "实名认证失败")
		return
	}
	c.toast("实名认证成功")
	next := c.st.verify.next
	if next == "" {
		next = targetResults
	}
	c.st.verify = verifyState{}
	c.st.afterProfile = next
	c.loadProfile()
}

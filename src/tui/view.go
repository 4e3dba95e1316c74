package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/orchestra-mcp/railbook/src/app"
	"github.com/orchestra-mcp/railbook/src/booking"
	"github.com/orchestra-mcp/railbook/src/types"
)

// View draws the current frame.
func (m *Model) View() string {
	if !m.ready {
		return dimStyle.Render("加载中…")
	}
	var body string
	switch m.view.Screen {
	case app.ScreenResults:
		body = m.viewResults()
	case app.ScreenBooking:
		body = m.viewBooking()
	case app.ScreenPayment:
		body = m.viewPayment()
	case app.ScreenLogin:
		body = m.viewLogin()
	case app.ScreenVerify:
		body = m.viewVerify()
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.header(), body, m.footer())
}

func (m *Model) header() string {
	who := dimStyle.Render("未登录")
	if m.view.SignedIn {
		name := m.view.Credential.Phone
		if p := m.view.Profile; p != nil && p.RealName != "" {
			name = p.RealName
		}
		who = okStyle.Render(name)
	}
	line := titleStyle.Render("railbook") + "  " + who
	if n := len(m.view.Desired); n > 0 {
		line += "  " + dimStyle.Render(fmt.Sprintf("实时 %d/%d", m.view.LiveOpen, n))
	}
	if m.view.Toast != "" {
		line += "  " + toastStyle.Render(m.view.Toast)
	}
	return line + "\n"
}

var helpLines = map[app.Screen]string{
	app.ScreenResults: "/ 搜索  ↑↓ 选择  enter 预订  n/p 翻页  l 登录  v 实名  o 退出登录  ctrl+c 退出",
	app.ScreenBooking: "tab 切换输入  ↑↓ 乘客  ctrl+a 添加  ctrl+x 删除  ctrl+s 本人  ctrl+l 常用乘客  ctrl+t 席别  ctrl+e 选座  enter 下一步  ctrl+b 返回  esc 取消",
	app.ScreenPayment: "p 支付  c 渠道  m 模拟回调  r 刷新  x 取消订单  f 退票  g 改签  esc 返回",
	app.ScreenLogin:   "tab 切换输入  enter 登录  esc 返回",
	app.ScreenVerify:  "tab 切换输入  enter 提交  esc 返回",
}

func (m *Model) footer() string {
	return "\n" + dimStyle.Render(helpLines[m.view.Screen])
}

func (m *Model) field(label, id string) string {
	in := m.in.get(id)
	if in == nil {
		return ""
	}
	return labelStyle.Render(label) + in.View()
}

func (m *Model) viewResults() string {
	v := m.view
	var b strings.Builder
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.field("出发", idFrom), "  ",
		m.field("到达", idTo), "  ",
		m.field("日期", idDate), "  ",
		m.field("席别", idSeat)))
	b.WriteString("\n")
	status := fmt.Sprintf("第 %d 页  共 %d 条", v.Page+1, v.Total)
	if v.Loading {
		status += "  查询中…"
	}
	b.WriteString(dimStyle.Render(status))
	b.WriteString("\n\n")

	if len(v.Rows) == 0 && !v.Loading {
		b.WriteString(dimStyle.Render("暂无车次"))
		return b.String()
	}
	first, rows := m.firstVisible(), m.pageRows()
	for i, t := range v.Rows {
		idx := v.Window.Start + i
		if idx < first || idx >= first+rows {
			continue
		}
		row := trainRow(t)
		if idx == m.sel {
			row = selectedStyle.Render(row)
		}
		b.WriteString(row)
		b.WriteString("\n")
	}
	return b.String()
}

// trainRow renders one result in rowLines lines.
func trainRow(t types.Train) string {
	top := fmt.Sprintf("%-6s %s %s → %s %s  %s",
		t.TrainID, t.TrainType,
		t.DepartureStation, t.ArrivalStation,
		clockTime(t.DepartureTime), duration(t.RuntimeMinutes))
	remain := okStyle.Render(fmt.Sprintf("余 %d", t.RemainingSeatCount))
	if t.RemainingSeatCount <= 0 {
		remain = errStyle.Render("无票")
	}
	bottom := fmt.Sprintf("       %s ¥%.1f  %s", t.SeatType, t.SeatPrice, remain)
	return top + "\n" + bottom
}

func clockTime(t time.Time) string {
	if t.IsZero() {
		return "--:--"
	}
	return t.Local().Format("15:04")
}

func duration(minutes uint32) string {
	return fmt.Sprintf("%dh%02dm", minutes/60, minutes%60)
}

func (m *Model) viewBooking() string {
	bv := m.view.Booking
	if bv == nil {
		return dimStyle.Render("没有进行中的预订")
	}
	var b strings.Builder
	t := bv.Train
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s  %s → %s  %s", t.TrainID, t.DepartureStation, t.ArrivalStation, bv.TravelDate)))
	b.WriteString("\n")
	if bv.Fare != nil {
		var fares []string
		for _, f := range bv.Fare.SeatTypes {
			fares = append(fares, fmt.Sprintf("%s ¥%.1f 余%d", f.SeatType, f.MinPrice, f.Remaining))
		}
		b.WriteString(dimStyle.Render(strings.Join(fares, "  ")))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for i, d := range bv.Drafts {
		b.WriteString(m.draftBlock(bv, i, d))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "预估总价 ¥%.1f", bv.Estimate)
	if bv.Step == booking.StepConfirm {
		b.WriteString("  " + okStyle.Render("请确认后按 enter 提交"))
	}
	if bv.Submitting {
		b.WriteString("  " + dimStyle.Render("提交中…"))
	}
	if bv.Err != "" {
		b.WriteString("\n" + errStyle.Render(bv.Err))
	}
	return b.String()
}

func (m *Model) draftBlock(bv *app.BookingView, i int, d booking.Draft) string {
	errs := bv.Errors[i]
	var lines []string
	head := fmt.Sprintf("乘客 %d", i+1)
	switch {
	case d.Self:
		head += "（本人）"
	case d.Linked():
		head += "（常用乘客）"
	}
	if i == m.draft {
		head = "▸ " + head
	}
	lines = append(lines, titleStyle.Render(head))

	if bv.Step == booking.StepPassengers && !d.Locked() {
		lines = append(lines, m.field("姓名", passengerID(i, "name"))+fieldNote(errs, booking.FieldName))
		lines = append(lines, m.field("身份证号", passengerID(i, "id"))+fieldNote(errs, booking.FieldID))
	} else {
		lines = append(lines, labelStyle.Render("姓名")+d.Name)
		lines = append(lines, labelStyle.Render("身份证号")+maskID(d.IDNumber))
	}
	class := d.SeatClass
	if class == "" {
		class = dimStyle.Render("未选择")
	}
	lines = append(lines, labelStyle.Render("席别")+class+fieldNote(errs, booking.FieldSeatClass))
	if d.SeatPref != "" {
		lines = append(lines, labelStyle.Render("选座")+d.SeatPref)
	}
	if err := errs[booking.FieldPassenger]; err != nil {
		lines = append(lines, errStyle.Render(fieldMessage(err)))
	}
	if bv.Step == booking.StepPassengers && i == m.draft && i < len(bv.SeatMaps) && bv.SeatMaps[i] != nil {
		lines = append(lines, seatGrid(bv.SeatMaps[i]))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func fieldNote(errs booking.FieldErrors, f booking.Field) string {
	if err := errs[f]; err != nil {
		return "  " + errStyle.Render(fieldMessage(err))
	}
	return ""
}

func seatGrid(seats []booking.Seat) string {
	var b strings.Builder
	for i, s := range seats {
		if i > 0 && i%booking.SeatMapColumns == 0 {
			b.WriteString("\n")
		}
		switch {
		case s.Gap:
			b.WriteString("  ")
		case s.Selected:
			b.WriteString(seatPicked.Render(s.Label))
		case s.Enabled:
			b.WriteString(seatOpen.Render(s.Label))
		default:
			b.WriteString(seatTaken.Render(s.Label))
		}
		b.WriteString(" ")
	}
	return b.String()
}

func maskID(id string) string {
	r := []rune(id)
	if len(r) <= 8 {
		return id
	}
	return string(r[:4]) + strings.Repeat("*", len(r)-8) + string(r[len(r)-4:])
}

func (m *Model) viewPayment() string {
	pv := m.view.Pay
	if pv == nil {
		return dimStyle.Render("没有待支付订单")
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("订单 " + pv.OrderID))
	b.WriteString("\n")
	status := pv.State.String()
	if o := pv.Order; o != nil {
		status = o.OrderStatus
		fmt.Fprintf(&b, "%s → %s  ¥%.1f\n", o.DepartureStation, o.ArrivalStation, o.TotalAmount)
		if o.PayDeadlineUnix > 0 && !pv.State.Terminal() {
			fmt.Fprintf(&b, "支付截止 %s\n", time.Unix(o.PayDeadlineUnix, 0).Local().Format("15:04:05"))
		}
	} else if c := pv.Created; c != nil && c.PayDeadlineUnix > 0 {
		fmt.Fprintf(&b, "支付截止 %s\n", time.Unix(c.PayDeadlineUnix, 0).Local().Format("15:04:05"))
	}
	st := okStyle
	if pv.State == booking.Cancelled || pv.State == booking.Refunded {
		st = errStyle
	}
	b.WriteString("状态 " + st.Render(status))
	if pv.Polling {
		b.WriteString("  " + dimStyle.Render("等待支付结果…"))
	}
	b.WriteString("\n\n")
	for _, s := range pv.Seats {
		fmt.Fprintf(&b, "%s  %s车 %s  ¥%.1f\n", s.SeatType, s.CarriageNum, s.SeatNum, s.SeatPrice)
	}
	if r := pv.Result; r != nil {
		fmt.Fprintf(&b, "\n支付单号 %s  %s\n", r.PayNo, r.PayStatus)
		if r.PayURL != "" {
			b.WriteString(dimStyle.Render(r.PayURL) + "\n")
		}
	}
	if t, ok := m.selected(); ok && !pv.State.Terminal() {
		b.WriteString("\n改签目标 " + t.TrainID + " " + t.DepartureStation + " → " + t.ArrivalStation)
	}
	b.WriteString("\n支付渠道 " + payChannels[m.channel])
	if pv.Paying {
		b.WriteString("  " + dimStyle.Render("支付中…"))
	}
	return b.String()
}

func (m *Model) viewLogin() string {
	lines := []string{
		titleStyle.Render("登录"),
		m.field("手机号", idPhone),
		m.field("密码", idPass),
	}
	if m.view.SigningIn {
		lines = append(lines, dimStyle.Render("登录中…"))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func (m *Model) viewVerify() string {
	vv := m.view.Verify
	lines := []string{
		titleStyle.Render("实名认证"),
		m.field("真实姓名", idVName) + verifyNote(vv, booking.FieldName),
		m.field("身份证号", idVID) + verifyNote(vv, booking.FieldID),
		m.field("手机号", idVTel) + verifyNote(vv, booking.FieldPhone),
	}
	if vv.Submitting {
		lines = append(lines, dimStyle.Render("提交中…"))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func verifyNote(vv app.VerifyView, f booking.Field) string {
	if err := vv.Errors[f]; err != nil {
		return "  " + errStyle.Render(fieldMessage(err))
	}
	return ""
}

package tui

import (
	"errors"

	"github.com/orchestra-mcp/railbook/src/booking"
)

var fieldMessages = []struct {
	err error
	msg string
}{
	{booking.ErrNameRequired, "请输入姓名"},
	{booking.ErrNameTooLong, "姓名过长"},
	{booking.ErrNameCharset, "姓名需为2-20位中文字符（可含·）"},
	{booking.ErrIDRequired, "请输入身份证号"},
	{booking.ErrIDFormat, "身份证号格式错误"},
	{booking.ErrIDChecksum, "身份证校验位不正确"},
	{booking.ErrSeatClassRequired, "请选择席别"},
	{booking.ErrPhoneFormat, "手机号格式错误"},
}

func fieldMessage(err error) string {
	if err == nil {
		return ""
	}
	for _, m := range fieldMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return err.Error()
}

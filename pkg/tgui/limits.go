package tgui

import "errors"

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
const MaxCallbackDataLen = 64

var (
	ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")
	ErrCallbackDataEmpty   = errors.New("tgui: callback_data empty")
)

// CheckData validates callback data against Telegram's limits.
func CheckData(data string) error {
	switch {
	case data == "":
		return ErrCallbackDataEmpty
	case len(data) > MaxCallbackDataLen:
		return ErrCallbackDataTooLong
	}
	return nil
}

package device

import (
	"github.com/wfunc/bms-stand/internal/errors"
)

var errAlreadyStarted = errors.New(errors.ErrInvalidParam, "сессия уже запущена")

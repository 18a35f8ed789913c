package domain

type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notice is a transient message shown to the user after a redirect.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

var (
	NoticeBooked        = Notice{Level: NoticeInfo, Message: "You booked this class."}
	NoticeAlreadyBooked = Notice{Level: NoticeInfo, Message: "You have already booked this class."}
	NoticeCanceled      = Notice{Level: NoticeInfo, Message: "You canceled this booking."}
	NoticeNotBooked     = Notice{Level: NoticeInfo, Message: "You did not book this class."}
	NoticeNoBookings    = Notice{Level: NoticeInfo, Message: "You have no classes booked"}
	NoticeNoOpenOrder   = Notice{Level: NoticeError, Message: "You don't have any class booked"}
)

package booking

// Status は予約の状態を表す
type Status string

const (
	StatusPending              Status = "pending"
	StatusReserved             Status = "reserved"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusPaid                 Status = "paid"
	StatusCancelled            Status = "cancelled"
	StatusExpired              Status = "expired"
)

// HoldingStatuses は座席を保持する状態の一覧
var HoldingStatuses = []Status{
	StatusPending,
	StatusReserved,
	StatusAwaitingConfirmation,
	StatusPaid,
}

// ExpirableStatuses は期限付きで座席を保持する状態の一覧
var ExpirableStatuses = []Status{
	StatusPending,
	StatusReserved,
}

// IsValid は既知の状態かを返す
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusReserved, StatusAwaitingConfirmation,
		StatusPaid, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// HoldsSeats は座席を保持する状態かを返す
func (s Status) HoldsSeats() bool {
	for _, h := range HoldingStatuses {
		if s == h {
			return true
		}
	}
	return false
}

// IsExpirable は有効期限で失効し得る状態かを返す
func (s Status) IsExpirable() bool {
	return s == StatusPending || s == StatusReserved
}

// IsTerminal は終了状態かを返す
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled || s == StatusExpired
}

// Action は予約に対する操作
type Action string

const (
	ActionConfirm Action = "confirm"
	ActionPay     Action = "pay"
	ActionCancel  Action = "cancel"
	ActionExpire  Action = "expire"
)

type edge struct {
	from   Status
	action Action
}

// transitions は許可された状態遷移の一覧
var transitions = map[edge]Status{
	{StatusPending, ActionConfirm}:              StatusAwaitingConfirmation,
	{StatusReserved, ActionConfirm}:             StatusAwaitingConfirmation,
	{StatusAwaitingConfirmation, ActionPay}:     StatusPaid,
	{StatusPending, ActionCancel}:               StatusCancelled,
	{StatusReserved, ActionCancel}:              StatusCancelled,
	{StatusAwaitingConfirmation, ActionCancel}:  StatusCancelled,
	{StatusPending, ActionExpire}:               StatusExpired,
	{StatusReserved, ActionExpire}:              StatusExpired,
	{StatusPending, ActionPay}:                  StatusPaid, // 直接決済フローのみ
	{StatusReserved, ActionPay}:                 StatusPaid, // 直接決済フローのみ
}

// directPayment は確認を経ずに決済できる遷移
var directPayment = map[edge]bool{
	{StatusPending, ActionPay}:  true,
	{StatusReserved, ActionPay}: true,
}

// Next は from に action を適用した遷移先を返す。
// 取り消し・失効済み、または決済済みへの再決済は ErrAlreadyFinal、それ以外の未定義遷移は ErrInvalidTransition
func Next(from Status, action Action, allowDirectPayment bool) (Status, error) {
	e := edge{from, action}
	if to, ok := transitions[e]; ok && (allowDirectPayment || !directPayment[e]) {
		return to, nil
	}
	switch {
	case from == StatusCancelled || from == StatusExpired:
		return "", ErrAlreadyFinal
	case from == StatusPaid && action == ActionPay:
		return "", ErrAlreadyFinal
	}
	return "", ErrInvalidTransition
}

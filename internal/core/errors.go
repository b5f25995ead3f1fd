package core

import "errors"

var (
	ErrProjectNotFound       = errors.New("project not found")
	ErrDeadlinePassed        = errors.New("donation deadline has passed")
	ErrDeadlineNotPassed     = errors.New("donation deadline has not passed")
	ErrGoalReached           = errors.New("funding goal was reached")
	ErrGoalNotReached        = errors.New("funding goal not reached")
	ErrNotOwner              = errors.New("caller is not the project owner")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrTransferFailed        = errors.New("asset transfer failed")
	ErrNothingToWithdraw     = errors.New("nothing to withdraw")
	ErrProjectSettled        = errors.New("project funds already withdrawn by owner")

	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidGoal     = errors.New("invalid goal")
	ErrInvalidDuration = errors.New("invalid duration")
	ErrInvalidIdentity = errors.New("invalid identity")
	ErrInvalidAsset    = errors.New("invalid asset id")
)

// Machine-readable error kinds.
const (
	KindUnknown               = "UNKNOWN"
	KindProjectNotFound       = "PROJECT_NOT_FOUND"
	KindDeadlinePassed        = "DEADLINE_PASSED"
	KindDeadlineNotPassed     = "DEADLINE_NOT_PASSED"
	KindGoalReached           = "GOAL_REACHED"
	KindGoalNotReached        = "GOAL_NOT_REACHED"
	KindNotOwner              = "NOT_OWNER"
	KindInsufficientBalance   = "INSUFFICIENT_BALANCE"
	KindInsufficientAllowance = "INSUFFICIENT_ALLOWANCE"
	KindTransferFailed        = "TRANSFER_FAILED"
	KindNothingToWithdraw     = "NOTHING_TO_WITHDRAW"
	KindProjectSettled        = "PROJECT_SETTLED"
	KindValidation            = "VALIDATION"
)

// kindOrder is checked in sequence, so a transfer failure that wraps a
// balance error is still reported as TRANSFER_FAILED.
var kindOrder = []struct {
	err  error
	kind string
}{
	{ErrTransferFailed, KindTransferFailed},
	{ErrProjectNotFound, KindProjectNotFound},
	{ErrDeadlinePassed, KindDeadlinePassed},
	{ErrDeadlineNotPassed, KindDeadlineNotPassed},
	{ErrGoalReached, KindGoalReached},
	{ErrGoalNotReached, KindGoalNotReached},
	{ErrNotOwner, KindNotOwner},
	{ErrInsufficientBalance, KindInsufficientBalance},
	{ErrInsufficientAllowance, KindInsufficientAllowance},
	{ErrNothingToWithdraw, KindNothingToWithdraw},
	{ErrProjectSettled, KindProjectSettled},
	{ErrInvalidAmount, KindValidation},
	{ErrInvalidGoal, KindValidation},
	{ErrInvalidDuration, KindValidation},
	{ErrInvalidIdentity, KindValidation},
	{ErrInvalidAsset, KindValidation},
}

// ErrorKind maps err to a stable machine-readable code.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kindOrder {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

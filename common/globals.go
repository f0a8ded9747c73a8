package common

const (
	InvoiceTypeIncoming = "incoming"
	InvoiceTypeOutgoing = "outgoing"

	InvoiceStateInitialized = "initialized"
	InvoiceStateOpen        = "open"
	InvoiceStatePending     = "pending"
	InvoiceStateSettled     = "settled"
	InvoiceStateError       = "error"

	AccountTypeCurrent = "current"
	AccountTypeNetwork = "network"
	AccountTypeFees    = "fees"
	AccountTypeRewards = "rewards"

	EntryTypeOnUsSend             = "on_us_send"
	EntryTypeOnUsReceive          = "on_us_receive"
	EntryTypeExternalSend         = "external_send"
	EntryTypeExternalReceive      = "external_receive"
	EntryTypeOnboardingEarn       = "onboarding_earn"
	EntryTypeFee                  = "fee"
	EntryTypeExternalSendReversal = "external_send_reversal"
	EntryTypeFeeReversal          = "fee_reversal"

	EntryStatePending  = "pending"
	EntryStateSettled  = "settled"
	EntryStateReversed = "reversed"

	NotificationPaymentSent     = "payment_sent"
	NotificationPaymentReceived = "payment_received"

	DestinationPubkeyHexSize = 66
)

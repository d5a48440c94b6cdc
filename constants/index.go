package constants

const ROLE_CUSTOMER = "CUSTOMER"

const (
	ERROR_INTERNAL_ERROR      = "Internal server error"
	ERROR_INPUT               = "Invalid input"
	DATA_INPUT_IS_NOT_NUMBER  = "Parameter must be a number"
	UNAUTHORIZED              = "Please sign in"
	ORDER_NOT_FOUND           = "Order not found"
	ORDER_NOT_PAYABLE         = "Order cannot be paid"
	PAYMENT_NOT_FOUND         = "Payment not found"
	PAYMENT_SESSION_EXISTS    = "A payment session is already open for this order"
	PAYMENT_OUTCOME_CONFLICT  = "Payment outcome conflicts with the recorded outcome"
	PAYMENT_GATEWAY_DOWN      = "Payment gateway is unavailable, try again later"
	PAYMENT_GATEWAY_REJECTED  = "Payment gateway rejected the request"
	PAYMENT_INVALID_SIGNATURE = "Invalid signature"
	PAYMENT_MALFORMED_PAYLOAD = "Malformed notification payload"
	PAYMENT_TXN_MISMATCH      = "Transaction does not belong to this payment"
)

package status

const (
	OK                    = "OK"
	CREATED               = "CREATED"
	BAD_REQUEST           = "BAD_REQUEST"
	UNAUTHORIZED          = "UNAUTHORIZED"
	FORBIDDEN             = "FORBIDDEN"
	NOT_FOUND             = "NOT_FOUND"
	CONFLICT              = "CONFLICT"
	UNPROCESSABLE_ENTITY  = "UNPROCESSABLE_ENTITY"
	INTERNAL_SERVER_ERROR = "INTERNAL_SERVER_ERROR"

	INSUFFICIENT_INVENTORY   = "INSUFFICIENT_INVENTORY"
	INVALID_STATE_TRANSITION = "INVALID_STATE_TRANSITION"
	INVALID_SIGNATURE        = "INVALID_SIGNATURE"
	AMOUNT_MISMATCH          = "AMOUNT_MISMATCH"
	ALREADY_PROCESSED        = "ALREADY_PROCESSED"
)

package ticket

type CheckInRequest struct {
	Payload string `json:"payload" validate:"required"`
}

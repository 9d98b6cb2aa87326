package order

type ProcessExpiredResponse struct {
	Expired int `json:"expired"`
}

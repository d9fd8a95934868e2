package controllers

type ErrorResponse struct {
	Error string `json:"error"`
}

package models

type Doctor struct {
	ID             string `json:"_id"`
	Name           string `json:"name"`
	Specialization string `json:"specialization,omitempty"`
}

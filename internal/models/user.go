package models

const (
	RoleOwner    = "owner"
	RoleCustomer = "customer"
	RoleCourier  = "courier"
)

type User struct {
	ID           int64    `json:"id"`
	Email        string   `json:"email"`
	Forename     string   `json:"forename"`
	Surname      string   `json:"surname"`
	PasswordHash string   `json:"-"`
	Roles        []string `json:"roles"`
}

package enum

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Command devtoken mints a bearer token for local testing of the API.
//
//	go run ./cmd/devtoken -employee hr-1 -role hr_admin
//
// The secret comes from JWT_SECRET (.env honoured), defaulting to the same
// development secret the server falls back to.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/govhr/leave-engine/api"
	"github.com/govhr/leave-engine/config"
	"github.com/govhr/leave-engine/leave"
)

func main() {
	cfg := config.Load()
	employee := flag.String("employee", "", "employee ID the token identifies")
	role := flag.String("role", string(leave.RoleStaff), "staff, department_head, director or hr_admin")
	ttl := flag.Duration("ttl", 8*time.Hour, "token lifetime")
	flag.Parse()

	if *employee == "" || !leave.Role(*role).Valid() {
		flag.Usage()
		os.Exit(2)
	}
	secret := cfg.JWTSecret
	if secret == "" {
		secret = "dev-secret"
	}

	token, err := api.GenerateToken(secret, api.Claims{EmployeeID: *employee, Role: *role}, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

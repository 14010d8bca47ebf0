// Package authctl implements the operator commands of the auth server:
// schema migration and rollback, seeding default accounts and creating an
// administrator from the terminal.
package authctl

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"campusconnect.org/internal/authclient"
)

// Exercises the full session lifecycle against a running instance: login,
// rotate, prove the consumed token is dead, then log out.
func main() {
	base := os.Getenv("CAMPUS_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	email := os.Getenv("CAMPUS_SMOKE_EMAIL")
	password := os.Getenv("CAMPUS_SMOKE_PASSWORD")
	if email == "" || password == "" {
		log.Fatal("set CAMPUS_SMOKE_EMAIL and CAMPUS_SMOKE_PASSWORD")
	}

	client := authclient.New(base)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	session, err := client.Login(ctx, email, password)
	if err != nil {
		log.Fatalf("login: %v", err)
	}
	log.Printf("logged in as %s (%v)", session.Identity.Email, session.Identity.Roles)

	me, err := client.Me(ctx, session.AccessToken)
	if err != nil {
		log.Fatalf("me: %v", err)
	}
	log.Printf("access token verified for %v", me["id"])

	rotated, err := client.Refresh(ctx, session.RefreshToken)
	if err != nil {
		log.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken == session.RefreshToken {
		log.Fatal("refresh token was not rotated")
	}
	log.Print("refresh token rotated")

	// The consumed token must be refused; anything else means the rotation
	// ledger is broken.
	_, err = client.Refresh(ctx, session.RefreshToken)
	var apiErr *authclient.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		log.Fatalf("replay of consumed token not refused: %v", err)
	}
	log.Print("consumed token correctly refused")

	if err := client.Logout(ctx, rotated.AccessToken, rotated.RefreshToken); err != nil {
		log.Fatalf("logout: %v", err)
	}
	_, err = client.Refresh(ctx, rotated.RefreshToken)
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		log.Fatalf("revoked token not refused after logout: %v", err)
	}
	log.Print("logout revoked the session")

	log.Print("smoke-auth OK")
}

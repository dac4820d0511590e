package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/examsmart/examsmart-backend/internal/config"
	"github.com/examsmart/examsmart-backend/internal/database"
	"github.com/examsmart/examsmart-backend/internal/logger"
	"github.com/examsmart/examsmart-backend/internal/model"
	"github.com/examsmart/examsmart-backend/internal/repository"
	"github.com/examsmart/examsmart-backend/internal/service"
	"golang.org/x/term"
)

const minPasswordLen = 8

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Initialize Service ────────────────────────────────────────────
	// Revocation is never consulted when only creating users.
	authService := service.NewAuthService(cfg, nil)
	userService := service.NewUserService(repository.NewUserRepository(pool), authService)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Create New User ===")

	firstName := prompt(reader, "Enter First Name: ")
	lastName := prompt(reader, "Enter Last Name: ")
	if firstName == "" || lastName == "" {
		fmt.Println("Error: First and last name are required")
		return
	}

	email := prompt(reader, "Enter Email: ")
	if !strings.Contains(email, "@") {
		fmt.Println("Error: A valid email is required")
		return
	}

	role := model.UserRole(strings.ToLower(prompt(reader, "Enter Role (professor/student/admin, default professor): ")))
	if role == "" {
		role = model.RoleProfessor
	}
	switch role {
	case model.RoleProfessor, model.RoleStudent, model.RoleAdmin:
	default:
		fmt.Printf("Error: Unknown role %q\n", role)
		return
	}

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // Newline after password input
	if err != nil {
		fmt.Println("Error reading password")
		return
	}
	password := string(bytePassword)
	if len(password) < minPasswordLen {
		fmt.Printf("Error: Password must be at least %d characters\n", minPasswordLen)
		return
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	res, err := userService.Register(ctx, &model.RegisterRequest{
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Password:  password,
		Role:      role,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create user")
	}

	fmt.Printf("\nSuccess! %s '%s %s' (%s) created with ID: %d\n",
		res.User.Role, res.User.FirstName, res.User.LastName, res.User.Email, res.User.ID)
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	s, _ := reader.ReadString('\n')
	return strings.TrimSpace(s)
}

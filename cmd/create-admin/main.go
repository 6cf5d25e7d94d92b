// Command create-admin creates an administrator account, or promotes an
// existing account to administrator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"fieldwork-backend-go/internal/config"
	"fieldwork-backend-go/internal/db"
	"fieldwork-backend-go/internal/migrations"
	"fieldwork-backend-go/internal/models"
	"fieldwork-backend-go/internal/services"
	"fieldwork-backend-go/internal/store"
)

func main() {
	_ = godotenv.Load()

	username := flag.String("username", "", "account username")
	password := flag.String("password", "", "account password, falls back to ADMIN_PASSWORD")
	displayName := flag.String("display-name", "", "display name")
	promote := flag.Bool("promote", false, "promote an existing account instead of creating one")
	flag.Parse()

	if *password == "" {
		*password = os.Getenv("ADMIN_PASSWORD")
	}
	if err := run(*username, *password, *displayName, *promote); err != nil {
		fmt.Fprintln(os.Stderr, "create-admin:", err)
		os.Exit(1)
	}
}

func run(username, password, displayName string, promote bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return errors.New("DATABASE_URL is required")
	}
	database, err := db.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer database.Close()

	if _, err := migrations.Apply(ctx, database, os.DirFS(migrationsDir())); err != nil {
		return err
	}

	records := store.NewPostgresStore(database)
	if promote {
		user, err := records.GetUserByUsername(ctx, username)
		if err != nil {
			return fmt.Errorf("load %q: %w", username, err)
		}
		if err := records.SetUserRole(ctx, user.ID, models.RoleAdmin, time.Now().UTC()); err != nil {
			return err
		}
		fmt.Printf("promoted %s (%s)\n", user.Username, user.ID)
		return nil
	}

	svc := services.New(services.Service{Store: records})
	user, err := svc.CreateUser(ctx, services.RegisterInput{
		Username:    username,
		DisplayName: displayName,
		Password:    password,
	}, models.RoleAdmin)
	if err != nil {
		if svcErr, ok := services.AsServiceError(err); ok && len(svcErr.Fields) > 0 {
			return fmt.Errorf("%s: %v", svcErr.Message, svcErr.Fields)
		}
		return err
	}
	fmt.Printf("created admin %s (%s)\n", user.Username, user.ID)
	return nil
}

func migrationsDir() string {
	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		return dir
	}
	return config.DefaultMigrationsDir
}

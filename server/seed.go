package server

import (
	"errors"
	"log"
	"pixgate/internal"
	"pixgate/internal/config"
	"pixgate/models"
	"pixgate/security"
	"strings"
	"time"

	"github.com/google/uuid"
)

// seedAdmin creates the configured administrator unless a user already holds the email
func seedAdmin(users internal.UserStore, conf *config.Config) error {
	email := strings.ToLower(strings.TrimSpace(conf.Admin.Email))
	if conf.Admin.Password == "" || email == "" {
		log.Println("admin password is not set, no administrator is created")
		return nil
	}
	_, err := users.GetUserByEmail(email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, internal.ErrNotFound) {
		return err
	}
	hash, err := security.HashPassword(conf.Admin.Password)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	err = users.AddUser(&models.User{
		Id:        uuid.NewString(),
		Email:     email,
		Password:  hash,
		Name:      "Administrator",
		Role:      models.RoleAdmin,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return err
	}
	log.Println("administrator " + email + " is created")
	return nil
}

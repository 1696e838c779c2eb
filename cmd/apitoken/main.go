// Package main is an operator tool for the long-lived API tokens used by command
// line clients. Only the bcrypt hash of a token is stored, so create prints the raw
// token exactly once.
//
//	apitoken create -user alice -name laptop -expires 720h
//	apitoken list   -user alice
//	apitoken revoke -user alice -id <token id>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/meertime/dataportal/internal/auth"
	"github.com/meertime/dataportal/internal/config"
	"github.com/meertime/dataportal/internal/db"
	"github.com/meertime/dataportal/internal/db/models"
	"github.com/meertime/dataportal/internal/db/repositories"
)

const usage = "usage: apitoken <create|list|revoke> -user <username> [flags]"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) < 1 {
		return errors.New(usage)
	}
	command := args[0]
	switch command {
	case "create", "list", "revoke":
	default:
		return fmt.Errorf("unknown command: %s\n%s", command, usage)
	}

	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	username := fs.String("user", "", "username owning the token")
	name := fs.String("name", "cli", "label shown when listing tokens")
	expires := fs.Duration("expires", 0, "lifetime of the token; 0 never expires")
	id := fs.String("id", "", "token id to revoke")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if *username == "" {
		return errors.New(usage)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Auth.APITokens.Enabled {
		return errors.New("api tokens are disabled (auth.api_tokens.enabled)")
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.Database.GetDSN(), 2, 1)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	user, err := lookupUser(ctx, database, *username)
	if err != nil {
		return err
	}
	tokens := repositories.NewAPITokenRepository(database)

	switch command {
	case "create":
		return createToken(ctx, tokens, user, cfg.Auth.APITokens.Prefix, *name, *expires, out)
	case "list":
		return listTokens(ctx, tokens, user, out)
	case "revoke":
		if *id == "" {
			return errors.New("revoke needs -id")
		}
		ok, err := tokens.Delete(ctx, user.ID, *id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no token %s for user %s", *id, user.Username)
		}
		fmt.Fprintf(out, "Revoked token %s\n", *id)
		return nil
	}
	return nil
}

func lookupUser(ctx context.Context, database *sqlx.DB, username string) (*models.User, error) {
	user, err := repositories.NewUserRepository(database).GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", username)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("user %s is inactive", username)
	}
	return user, nil
}

type tokenStore interface {
	Create(ctx context.Context, token *models.APIToken) error
	ListByUser(ctx context.Context, userID int64) ([]models.APIToken, error)
}

func createToken(ctx context.Context, store tokenStore, user *models.User, prefix, name string, ttl time.Duration, out io.Writer) error {
	raw, hash, displayPrefix, err := auth.GenerateAPIToken(prefix)
	if err != nil {
		return err
	}
	token := &models.APIToken{
		UserID:      user.ID,
		Name:        name,
		TokenHash:   hash,
		TokenPrefix: displayPrefix,
	}
	if ttl > 0 {
		exp := time.Now().Add(ttl).UTC()
		token.ExpiresAt = &exp
	}
	if err := store.Create(ctx, token); err != nil {
		return err
	}

	fmt.Fprintf(out, "Token %s created for %s. It will not be shown again:\n\n  %s\n\n", token.ID, user.Username, raw)
	if token.ExpiresAt != nil {
		fmt.Fprintf(out, "Expires %s\n", token.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func listTokens(ctx context.Context, store tokenStore, user *models.User, out io.Writer) error {
	list, err := store.ListByUser(ctx, user.ID)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPREFIX\tEXPIRES\tLAST USED")
	for _, t := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Name, t.TokenPrefix, formatTime(t.ExpiresAt), formatTime(t.LastUsedAt))
	}
	return w.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}

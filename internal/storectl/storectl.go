// Package storectl implements the operator command line: schema migration,
// bootstrapping an admin account and uploading product images.
package storectl

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/dmitrijs2005/storefront/internal/flagx"
	"github.com/dmitrijs2005/storefront/internal/netx"
	"github.com/dmitrijs2005/storefront/internal/server"
	"github.com/dmitrijs2005/storefront/internal/server/config"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/repomanager"
)

const usage = `usage: storectl <command> [-c config.json] [flags]

commands:
  migrate        apply database migrations
  create-admin   create a verified account with the Admin role
  upload-image   upload a product image through a presigned URL`

const minPasswordLength = 6

// readPassword is a test seam for term.ReadPassword.
var readPassword = func() ([]byte, error) {
	return term.ReadPassword(int(os.Stdin.Fd()))
}

// migrate is a test seam for the database migration step.
var migrate = func(ctx context.Context, cfg *config.Config) error {
	db, err := server.OpenDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()
	return repomanager.NewPostgresRepositoryManager().RunMigrations(ctx, db)
}

type provisioner interface {
	Provision(ctx context.Context, email, password, firstName, lastName string, roles ...models.Role) (*models.UserView, error)
}

type imageUploader interface {
	ImageUploadURL(ctx context.Context, id, filename, contentType string) (*models.ImageUpload, error)
}

// Run executes the command named by args[0].
func Run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	cmd, rest := args[0], args[1:]

	cfg, err := config.Load(flagx.FilterArgs(rest, []string{"-c", "-config", "--config"}))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cmdArgs := flagx.StripConfig(rest)

	switch cmd {
	case "migrate":
		if err := migrate(ctx, cfg); err != nil {
			return err
		}
		fmt.Fprintln(out, "migrations applied")
		return nil

	case "create-admin", "upload-image":
		app, err := server.NewApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		if cmd == "create-admin" {
			return createAdmin(ctx, app.Auth(), cmdArgs, out)
		}
		return uploadImage(ctx, app.Products(), http.DefaultClient, cmdArgs, out)
	}

	return fmt.Errorf("unknown command %q\n%s", cmd, usage)
}

func createAdmin(ctx context.Context, p provisioner, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
	fs.SetOutput(out)
	email := fs.String("email", "", "account e-mail (required)")
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*email) == "" {
		return errors.New("-email is required")
	}

	password, err := promptPassword(out, "Enter password: ")
	if err != nil {
		return err
	}
	if len(password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	confirm, err := promptPassword(out, "Repeat password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return errors.New("passwords do not match")
	}

	u, err := p.Provision(ctx, *email, password, *first, *last, models.RoleAdmin)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	fmt.Fprintf(out, "created %s (%s) with roles %s\n", u.Email, u.ID, strings.Join(u.Roles, ", "))
	return nil
}

func promptPassword(out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	pw, err := readPassword()
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func uploadImage(ctx context.Context, u imageUploader, client *http.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("upload-image", flag.ContinueOnError)
	fs.SetOutput(out)
	productID := fs.String("product", "", "product id (required)")
	path := fs.String("file", "", "image file (required)")
	contentType := fs.String("type", "", "content type, detected from the extension when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *productID == "" || *path == "" {
		return errors.New("-product and -file are required")
	}

	body, err := os.ReadFile(*path)
	if err != nil {
		return err
	}
	ct := *contentType
	if ct == "" {
		ct = mime.TypeByExtension(filepath.Ext(*path))
	}

	up, err := u.ImageUploadURL(ctx, *productID, filepath.Base(*path), ct)
	if err != nil {
		return fmt.Errorf("presign: %w", err)
	}
	if err := netx.UploadToPresignedURL(ctx, client, up.URL, body, ct); err != nil {
		return err
	}
	fmt.Fprintf(out, "uploaded %s (%d bytes)\n", up.Key, len(body))
	return nil
}

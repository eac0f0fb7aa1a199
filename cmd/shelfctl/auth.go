package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openshelf/shelfctl/pkg/access"
	"github.com/openshelf/shelfctl/pkg/library"
	"github.com/openshelf/shelfctl/pkg/session"
)

var (
	loginEmail    string
	loginPassword string

	signupEmail    string
	signupPassword string
	signupConfirm  string
	signupRole     string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the library service",
	RunE: runApp(func(ctx context.Context, a *app, _ []string) error {
		a.nav.location = access.PathLogin

		password := loginPassword
		if password == "" {
			var err error

			password, err = readPassword()
			if err != nil {
				return err
			}
		}

		result, err := a.mutator.SignIn(ctx, library.SignInInput{
			Email:    loginEmail,
			Password: password,
		})
		if err != nil {
			return fmt.Errorf("signing in: %w", err)
		}

		fmt.Printf("Signed in as %s (%s)\n", result.User.Email, result.User.Role)

		return nil
	}),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and discard the saved session",
	RunE: runApp(func(ctx context.Context, a *app, _ []string) error {
		a.nav.location = access.PathLogin
		a.boot.Run(ctx)

		if !a.store.Snapshot().IsAuthenticated {
			fmt.Println("Not signed in.")

			return nil
		}

		if err := a.mutator.SignOut(ctx); err != nil {
			return fmt.Errorf("signing out: %w", err)
		}

		fmt.Println("Signed out.")

		return nil
	}),
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Register a new account",
	RunE: runApp(func(ctx context.Context, a *app, _ []string) error {
		a.nav.location = access.PathSignup

		result, err := a.mutator.SignUp(ctx, library.SignUpInput{
			Email:                signupEmail,
			Password:             signupPassword,
			PasswordConfirmation: signupConfirm,
			Role:                 library.Role(signupRole),
		})
		if err != nil {
			return fmt.Errorf("signing up: %w", err)
		}

		fmt.Printf("Account created for %s. Run 'shelfctl login' to sign in.\n",
			result.User.Email)

		return nil
	}),
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account",
	RunE: runApp(func(ctx context.Context, a *app, _ []string) error {
		state := a.boot.Run(ctx)
		if state != session.StateAuthenticated {
			fmt.Println("Not signed in.")

			return nil
		}

		user := a.store.User()

		if jsonOutput {
			return printJSON(user)
		}

		fmt.Printf("%s (%s)\n", user.Email, user.Role)

		return nil
	}),
}

func readPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	return strings.TrimRight(line, "\r\n"), nil
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "",
		"account password (prompted when omitted)")
	_ = loginCmd.MarkFlagRequired("email")

	signupCmd.Flags().StringVar(&signupEmail, "email", "", "account email")
	signupCmd.Flags().StringVar(&signupPassword, "password", "", "account password")
	signupCmd.Flags().StringVar(&signupConfirm, "password-confirmation", "",
		"password confirmation")
	signupCmd.Flags().StringVar(&signupRole, "role", "", "account role (member, librarian)")
	_ = signupCmd.MarkFlagRequired("email")
	_ = signupCmd.MarkFlagRequired("password")
	_ = signupCmd.MarkFlagRequired("password-confirmation")

	rootCmd.AddCommand(loginCmd, logoutCmd, signupCmd, whoamiCmd)
}

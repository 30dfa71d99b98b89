package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/belkagoyda/orex-workspace/internal/web/repository"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Operator account commands",
}

var userCreateCmd = &cobra.Command{
	Use:   "create [username]",
	Short: "Create an operator account",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserCreate,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List operator accounts",
	RunE:  runUserList,
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete [username]",
	Short: "Delete an operator account and its sessions",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserDelete,
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd [username]",
	Short: "Set an operator password",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserPasswd,
}

var (
	userPassword string
	userYes      bool
)

func init() {
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "Password (will prompt if not provided)")
	userDeleteCmd.Flags().BoolVarP(&userYes, "yes", "y", false, "Do not ask for confirmation")

	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userDeleteCmd)
	userCmd.AddCommand(userPasswdCmd)
}

// promptPassword reads a password twice without echo
func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	if string(pw) != string(confirm) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(pw), nil
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	_, database, err := openAppDB()
	if err != nil {
		return err
	}
	defer database.Close()

	password := userPassword
	if password == "" {
		if password, err = promptPassword("Enter password: "); err != nil {
			return err
		}
	}

	user, err := repository.NewUserRepository(database.DB).Create(args[0], password)
	switch {
	case errors.Is(err, repository.ErrUserExists):
		return fmt.Errorf("user %s already exists", args[0])
	case err != nil:
		return err
	}

	fmt.Printf("User %s created (%s)\n", user.Username, user.ID)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	_, database, err := openAppDB()
	if err != nil {
		return err
	}
	defer database.Close()

	users, err := repository.NewUserRepository(database.DB).List()
	if err != nil {
		return err
	}

	fmt.Printf("%-36s  %-24s  %s\n", "ID", "Username", "Created")
	fmt.Println(strings.Repeat("-", 84))
	for _, u := range users {
		fmt.Printf("%-36s  %-24s  %s\n", u.ID, u.Username, u.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runUserDelete(cmd *cobra.Command, args []string) error {
	username := args[0]

	_, database, err := openAppDB()
	if err != nil {
		return err
	}
	defer database.Close()

	if !userYes {
		fmt.Printf("Are you sure you want to delete user %s? [y/N]: ", username)
		response, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Cancelled")
			return nil
		}
	}

	deleted, err := repository.NewUserRepository(database.DB).Delete(username)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("user %s not found", username)
	}

	fmt.Printf("User %s deleted\n", username)
	return nil
}

func runUserPasswd(cmd *cobra.Command, args []string) error {
	username := args[0]

	_, database, err := openAppDB()
	if err != nil {
		return err
	}
	defer database.Close()

	users := repository.NewUserRepository(database.DB)
	user, err := users.GetByUsername(username)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("user %s not found", username)
	}

	password, err := promptPassword("Enter new password: ")
	if err != nil {
		return err
	}
	if err := users.SetPassword(user.ID, password); err != nil {
		return err
	}

	// existing sessions were opened with the old password
	if _, err := repository.NewSessionRepository(database.DB).DeleteByUser(user.ID); err != nil {
		return fmt.Errorf("failed to end sessions: %w", err)
	}

	fmt.Printf("Password for %s updated\n", username)
	return nil
}

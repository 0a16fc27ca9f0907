package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/fossMeDaddy/sfs-cli/internal/config"
	"github.com/fossMeDaddy/sfs-cli/internal/http"
)

// EnvPassword holds the encryption password for non-interactive use.
const EnvPassword = "PASSWORD"

// ErrNoTerminal is returned when a prompt is needed but stdin is not a terminal.
var ErrNoTerminal = errors.New("cannot prompt: stdin is not a terminal")

// passwordSource reads secrets; tests replace it.
var passwordSource = readTerminalPassword

func readTerminalPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", ErrNoTerminal
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}

// uploadPassword returns the password for a new encrypted upload: the
// PASSWORD variable when set, else a prompt with confirmation.
func uploadPassword() (string, error) {
	if pw := os.Getenv(EnvPassword); pw != "" {
		return pw, nil
	}
	pw, err := passwordSource("Create password (remember this password!): ")
	if err != nil {
		return "", err
	}
	if pw == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	confirm, err := passwordSource("Confirm password: ")
	if err != nil {
		return "", err
	}
	if pw != confirm {
		return "", fmt.Errorf("passwords don't match")
	}
	return pw, nil
}

// downloadPassword returns the password to decrypt a blob, without confirmation.
func downloadPassword() (string, error) {
	if pw := os.Getenv(EnvPassword); pw != "" {
		return pw, nil
	}
	pw, err := passwordSource("Password: ")
	if err != nil {
		if errors.Is(err, ErrNoTerminal) {
			return "", fmt.Errorf("file is encrypted: set %s or run in a terminal", EnvPassword)
		}
		return "", err
	}
	return pw, nil
}

// ensureProxyPassword prompts for the proxy password when the configured
// proxy needs one and none was provided.
func ensureProxyPassword(cfg *config.Config) error {
	if !http.NeedsProxyPassword(cfg) {
		return nil
	}
	pw, err := passwordSource(fmt.Sprintf("Proxy password for %s@%s: ", cfg.Proxy.User, cfg.Proxy.Host))
	if err != nil {
		if errors.Is(err, ErrNoTerminal) {
			return fmt.Errorf("proxy password required: set SFS_PROXY_PASSWORD or run in a terminal")
		}
		return err
	}
	cfg.Proxy.Password = pw
	return nil
}

// confirm asks a yes/no question, defaulting to no.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	input, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
